package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/logger"
)

var ErrDetectionDisabled = errors.New("live detection is not configured")

// LabelDetector is satisfied by *rekognition.Client.
type LabelDetector interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// MainLot mirrors the single camera-covered lot served by the detection endpoint.
var MainLot = domain.LotLayout{
	ID:            "main",
	Name:          "Main Parking Lot",
	Rows:          5,
	Columns:       10,
	HourlyRate:    BasePricePerHour,
	MinConfidence: 50,
}

var vehicleLabels = map[string]bool{
	"Car":        true,
	"Vehicle":    true,
	"Truck":      true,
	"Motorcycle": true,
}

type DetectionService struct {
	detector LabelDetector
	layout   domain.LotLayout
	log      *zap.Logger
}

func NewDetectionService(detector LabelDetector, layout domain.LotLayout, log *zap.Logger) *DetectionService {
	return &DetectionService{detector: detector, layout: layout, log: logger.OrNop(log)}
}

func (s *DetectionService) Layout() domain.LotLayout {
	return s.layout
}

// AnalyzeLot finds vehicles in a camera frame and marks every grid cell they overlap as occupied.
func (s *DetectionService) AnalyzeLot(ctx context.Context, image []byte) (*domain.DetectionResult, error) {
	if s.detector == nil {
		return nil, ErrDetectionDisabled
	}

	out, err := s.detector.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MinConfidence: aws.Float32(s.layout.MinConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("DetectionService.AnalyzeLot: %w", err)
	}

	detections := vehicleDetections(out.Labels, s.layout.MinConfidence)
	spots := s.grid()
	available := 0
	for i := range spots {
		for _, d := range detections {
			if spots[i].Box.Overlaps(d.Box) {
				spots[i].Occupied = true
				break
			}
		}
		if !spots[i].Occupied {
			available++
		}
	}

	s.log.Debug("lot analysed", zap.Int("vehicles", len(detections)), zap.Int("available", available))
	return &domain.DetectionResult{
		Spots:          spots,
		Detections:     detections,
		TotalSpots:     s.layout.TotalSpots(),
		AvailableSpots: available,
	}, nil
}

// grid lays spots out row-major in image-relative coordinates; ids are "<row>_<col>".
func (s *DetectionService) grid() []domain.SpotOccupancy {
	spots := make([]domain.SpotOccupancy, 0, s.layout.TotalSpots())
	w := 1 / float32(s.layout.Columns)
	h := 1 / float32(s.layout.Rows)
	for r := 0; r < s.layout.Rows; r++ {
		for c := 0; c < s.layout.Columns; c++ {
			spots = append(spots, domain.SpotOccupancy{
				ID:  fmt.Sprintf("%d_%d", r, c),
				Box: domain.BoundingBox{Left: float32(c) * w, Top: float32(r) * h, Width: w, Height: h},
			})
		}
	}
	return spots
}

func vehicleDetections(labels []types.Label, minConfidence float32) []domain.VehicleDetection {
	var out []domain.VehicleDetection
	for _, label := range labels {
		name := aws.ToString(label.Name)
		if !vehicleLabels[name] {
			continue
		}
		for _, inst := range label.Instances {
			conf := aws.ToFloat32(inst.Confidence)
			if inst.BoundingBox == nil || conf <= minConfidence {
				continue
			}
			out = append(out, domain.VehicleDetection{
				Label:      name,
				Confidence: conf,
				Box: domain.BoundingBox{
					Left:   aws.ToFloat32(inst.BoundingBox.Left),
					Top:    aws.ToFloat32(inst.BoundingBox.Top),
					Width:  aws.ToFloat32(inst.BoundingBox.Width),
					Height: aws.ToFloat32(inst.BoundingBox.Height),
				},
			})
		}
	}
	return out
}
