package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"SiteSign/internal/background"
	"SiteSign/internal/geofence"
	"SiteSign/pkg/geo"
	"SiteSign/pkg/logger"
)

// inputEvent is one JSON line on stdin.
type inputEvent struct {
	Type     string    `json:"type"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Accuracy float64   `json:"accuracy"`
	At       time.Time `json:"at"`
	Code     string    `json:"code"`
	Action   string    `json:"action"`
}

type clicker interface {
	HandleClick(ctx context.Context, n background.Notification, action string) error
}

type inputLoop struct {
	source    *geofence.FeedSource
	tracker   *geofence.Tracker
	handler   clicker
	presenter *background.LogPresenter
}

func (l *inputLoop) run(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			if err := l.apply(ctx, line); err != nil {
				logger.Logger.Warn("Ignoring input line", zap.ByteString("line", line), zap.Error(err))
			}
		}
	}
}

func (l *inputLoop) apply(ctx context.Context, line []byte) error {
	var ev inputEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return err
	}

	switch ev.Type {
	case "position":
		l.source.Push(geofence.Sample{Point: geo.Point{Lat: ev.Lat, Lon: ev.Lon}, Accuracy: ev.Accuracy, At: ev.At})
	case "position_error":
		code := geofence.LocationErrorCode(ev.Code)
		switch code {
		case geofence.PermissionDenied, geofence.PositionUnavailable, geofence.PositionTimeout:
		default:
			return fmt.Errorf("unknown location error code %q", ev.Code)
		}
		l.source.Fail(&geofence.LocationError{Code: code})
	case "click":
		n, ok := l.presenter.Last()
		if !ok {
			return fmt.Errorf("no notification is showing")
		}
		return l.handler.HandleClick(ctx, n, ev.Action)
	case "snooze":
		return l.tracker.Snooze(ctx)
	case "signout":
		return l.tracker.SignOut(ctx)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}
