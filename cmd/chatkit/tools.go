package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/thecxx/chatkit"
)

type clockParams struct {
	Timezone string `chatkit:"timezone,required,desc=IANA time zone name, e.g. Europe/Paris"`
}

type clockResult struct {
	Timezone string `json:"timezone"`
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
}

// clockTool reports the current time in a time zone.
func clockTool() chatkit.Tool {
	return chatkit.DefineFunction("current_time", "Get the current date and time in a time zone",
		chatkit.WithFunction(func(ctx context.Context, p clockParams) (clockResult, error) {
			loc, err := time.LoadLocation(p.Timezone)
			if err != nil {
				return clockResult{}, fmt.Errorf("unknown time zone %q", p.Timezone)
			}
			now := time.Now().In(loc)
			return clockResult{
				Timezone: loc.String(),
				Time:     now.Format(time.RFC3339),
				Weekday:  now.Weekday().String(),
			}, nil
		}))
}

// printer writes streamed content as it arrives.
type printer struct {
	w io.Writer
}

func (p *printer) OnContent(chunk string) error {
	_, err := io.WriteString(p.w, chunk)
	return err
}

func (p *printer) OnToolCall(context.Context, chatkit.ToolCallDelta) error { return nil }

func (p *printer) OnStop(string) error { return nil }
