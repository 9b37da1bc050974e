package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"smart_parkai/internal/domain"
)

// ErrParseFailure is reported by callers that need an error for an utterance
// nothing could be extracted from. Interpret itself never fails.
var ErrParseFailure = errors.New("command not understood")

const CommandHint = "Try saying something like '30 minutes near exit' or '2 hours with EV charging'"

var (
	minutesPattern = regexp.MustCompile(`(\d+)\s*minute`)
	hoursPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*hour`)
)

// Utterance is the only thing the interpreter needs from a speech or text source.
type Utterance interface {
	Transcript() string
}

// TextUtterance adapts typed text and queued transcripts.
type TextUtterance string

func (t TextUtterance) Transcript() string { return string(t) }

type spotRule struct {
	keywords []string
	spot     domain.SpotPreference
}

// Evaluated top to bottom, first match wins: "charging near exit" selects exit.
var spotRules = []spotRule{
	{keywords: []string{"exit", "quick"}, spot: domain.SpotNearExit},
	{keywords: []string{"ev", "charging"}, spot: domain.SpotEVCharging},
	{keywords: []string{"elevator", "lift"}, spot: domain.SpotNearElevator},
}

// Interpret maps one utterance to a partial intent update.
func Interpret(u Utterance) domain.CommandResult {
	if u == nil {
		return domain.CommandResult{Feedback: CommandHint}
	}
	text := strings.ToLower(u.Transcript())

	var patch domain.IntentPatch
	var messages []string

	if preset, ok := extractDuration(text); ok {
		minutes := preset.Minutes
		patch.DurationMinutes = &minutes
		messages = append(messages, fmt.Sprintf("Set duration to %s", preset.Label))
	}

	if spot, ok := matchSpot(text); ok {
		patch.SpotPreference = &spot
		opt, _ := spot.Option()
		messages = append(messages, fmt.Sprintf("Selected %s", opt.Name))
	}

	if strings.Contains(text, "valet") {
		valet := !strings.Contains(text, "no valet")
		patch.ValetRequested = &valet
		if valet {
			messages = append(messages, "Valet service added")
		} else {
			messages = append(messages, "Valet service removed")
		}
	}

	if patch.IsEmpty() {
		return domain.CommandResult{Feedback: CommandHint}
	}
	return domain.CommandResult{
		Patch:      patch,
		Feedback:   strings.Join(messages, "; "),
		Understood: true,
	}
}

// extractDuration reads "<n> minute" and "<x> hour"; the hour form wins when both appear.
func extractDuration(text string) (domain.DurationPreset, bool) {
	if !strings.Contains(text, "minute") && !strings.Contains(text, "hour") {
		return domain.DurationPreset{}, false
	}

	minutes := 0
	if m := minutesPattern.FindStringSubmatch(text); m != nil {
		minutes = parseMinutes(m[1])
	}
	if m := hoursPattern.FindStringSubmatch(text); m != nil {
		hours, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			minutes = roundMinutes(hours * 60)
		}
	}
	if minutes <= 0 {
		return domain.DurationPreset{}, false
	}
	return domain.SnapDuration(minutes), true
}

// parseMinutes treats digit runs too long for int as "very large"; they clamp to the maximum anyway.
func parseMinutes(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return math.MaxInt32
		}
		return 0
	}
	return n
}

func roundMinutes(v float64) int {
	r := math.Round(v)
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r)
}

func matchSpot(text string) (domain.SpotPreference, bool) {
	for _, rule := range spotRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.spot, true
			}
		}
	}
	return domain.SpotNone, false
}
