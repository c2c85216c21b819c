// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/heatlink/pkg/aquarea"
	"github.com/Thermoquad/heatlink/pkg/uart"
)

// monitorReadTimeout bounds each passive read so cancellation is noticed
const monitorReadTimeout = 500 * time.Millisecond

// inspection is one frame seen on the line and what it decoded to
type inspection struct {
	frame   []byte
	at      time.Time
	status  *aquarea.Status
	setting map[string]float64
	err     error
}

// inspect validates and decodes a frame in either direction
func inspect(codec *aquarea.Codec, frame []byte, at time.Time) inspection {
	in := inspection{frame: frame, at: at}

	switch aquarea.FormatFrameKind(frame) {
	case "STATUS":
		in.status, in.err = codec.DecodeAt(frame, at)
	case "SETTING":
		in.setting, in.err = codec.DecodeSetting(frame)
	default:
		in.err = aquarea.Validate(frame)
	}
	return in
}

// format renders the frame header and decoded content
func (in inspection) format(reg *aquarea.Registry) string {
	var b strings.Builder
	b.WriteString(aquarea.FormatFrame(in.frame, in.at))
	switch {
	case in.err != nil:
		fmt.Fprintf(&b, "  [ERROR] %v\n", in.err)
	case in.status != nil:
		b.WriteString(aquarea.FormatStatus(in.status))
	case in.setting != nil:
		b.WriteString(aquarea.FormatSetting(reg, in.setting))
	}
	b.WriteString("\n")
	return b.String()
}

// watch reads frames from tr until ctx ends or the line goes away.
// Read timeouts are not reported.
func watch(ctx context.Context, tr *uart.Transport, fn func(frame []byte, at time.Time)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := tr.ReadFrame(monitorReadTimeout)
		if err != nil {
			if errors.Is(err, uart.ErrReadTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(frame, time.Now())
	}
}
