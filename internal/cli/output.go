package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"playersync/internal/rpc"
	"playersync/pkg/audit"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *rpc.BalanceResponse:
		fmt.Fprintf(o.w, "balance: %s\n", formatAmount(v.Balance))
	case *rpc.StatusResponse:
		fmt.Fprintln(o.w, "ok")
	case *rpc.SnapshotResponse:
		if v.Name != "" {
			fmt.Fprintf(o.w, "name: %s\n", v.Name)
		}
		if v.Data != "" {
			fmt.Fprintln(o.w, v.Data)
		}
	case *rpc.ListResponse:
		if len(v.Names) == 0 {
			fmt.Fprintln(o.w, "(no snapshots)")
			return
		}
		for _, name := range v.Names {
			fmt.Fprintln(o.w, name)
		}
	case *rpc.DeleteAllResponse:
		fmt.Fprintf(o.w, "deleted %d snapshot(s)\n", v.Deleted)
	case *rpc.InfoResponse:
		o.printInfo(v)
	case *rpc.HealthResponse:
		fmt.Fprintln(o.w, v.Status)
	case audit.Event:
		o.printEvent(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printInfo(v *rpc.InfoResponse) {
	if v.Info == nil {
		return
	}
	fmt.Fprintf(o.w, "name:     %s\n", v.Info.Name)
	fmt.Fprintf(o.w, "size:     %d bytes\n", v.Info.Size)
	fmt.Fprintf(o.w, "slots:    %d (%d occupied)\n", v.Info.Slots, v.Info.Occupied)
	fmt.Fprintf(o.w, "created:  %s\n", v.Info.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(o.w, "updated:  %s\n", v.Info.UpdatedAt.Format(time.RFC3339))
}

func (o *Output) printEvent(e audit.Event) {
	parts := []string{
		e.Time.Format(time.RFC3339),
		string(e.Type),
		e.Player.String(),
		formatAmount(e.Amount),
	}
	if e.Counterparty != nil {
		parts = append(parts, "to="+e.Counterparty.String())
	}
	if e.Balance != nil {
		parts = append(parts, "balance="+formatAmount(*e.Balance))
	}
	if e.Source != "" {
		parts = append(parts, "source="+e.Source)
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	fmt.Fprintln(o.w, strings.Join(parts, " "))
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
