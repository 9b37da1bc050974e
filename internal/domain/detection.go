package domain

// LotLayout describes the camera grid used to map detections onto spots.
// Coordinates are relative to the image (0..1).
type LotLayout struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Rows          int     `json:"rows"`
	Columns       int     `json:"columns"`
	HourlyRate    int     `json:"hourly_rate"`
	MinConfidence float32 `json:"min_confidence"`
}

func (l LotLayout) TotalSpots() int {
	return l.Rows * l.Columns
}

type BoundingBox struct {
	Left   float32 `json:"left"`
	Top    float32 `json:"top"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.Left < o.Left+o.Width && b.Left+b.Width > o.Left &&
		b.Top < o.Top+o.Height && b.Top+b.Height > o.Top
}

type VehicleDetection struct {
	Label      string      `json:"label"`
	Confidence float32     `json:"confidence"`
	Box        BoundingBox `json:"bbox"`
}

type SpotOccupancy struct {
	ID       string      `json:"id"`
	Box      BoundingBox `json:"bbox"`
	Occupied bool        `json:"occupied"`
}

type DetectionResult struct {
	Spots          []SpotOccupancy    `json:"spots"`
	Detections     []VehicleDetection `json:"detections"`
	TotalSpots     int                `json:"total_spots"`
	AvailableSpots int                `json:"available_spots"`
}

type DetectionRequestDTO struct {
	ImageBase64 string `json:"image" binding:"required"`
}
