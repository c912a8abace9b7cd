package common

import (
	"fmt"
	"strings"
	"time"

	"reward-ledger-go/internal/models"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintHeader prints a title between two rule lines
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", width))
}

// PrintFooter prints a closing message under a rule line
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the tree prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatWindow renders a validity window, open ends shown as "-".
func FormatWindow(from, until *time.Time) string {
	return formatBound(from) + " .. " + formatBound(until)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// PrintInstrument prints one instrument view as a tree entry
func PrintInstrument(view models.InstrumentView, isLast bool) {
	state := string(view.State)
	if view.Pending {
		state += " (pending)"
	}
	fmt.Printf("%s%s  %-14s %-12s %s\n", BoxPrefix(isLast), view.Id, view.Kind, state, view.FaceValue)

	detail := BoxDetailPrefix(isLast)
	fmt.Printf("%s   window: %s  visibility: %s\n", detail, FormatWindow(view.ValidFrom, view.ValidUntil), view.Visibility)
	if view.Code != "" {
		fmt.Printf("%s   code: %s\n", detail, view.Code)
	}
	if view.Channel != "" {
		fmt.Printf("%s   redeemed via %s at %s\n", detail, view.Channel, formatBound(view.RedeemedAt))
	}
}
