package background

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"SiteSign/pkg/logger"
)

// LogPresenter "shows" notifications as log lines and remembers them by tag
// so a later click can refer to the last one.
type LogPresenter struct {
	log *zap.Logger

	mu    sync.Mutex
	shown map[string]Notification
	last  string
}

func NewLogPresenter() *LogPresenter {
	return &LogPresenter{log: logger.Named("notification"), shown: make(map[string]Notification)}
}

func (p *LogPresenter) Show(ctx context.Context, n Notification) error {
	p.mu.Lock()
	_, replaced := p.shown[n.Tag]
	p.shown[n.Tag] = n
	p.last = n.Tag
	p.mu.Unlock()

	p.log.Info(n.Title,
		zap.String("tag", n.Tag),
		zap.String("body", n.Body),
		zap.String("visit_id", n.VisitID),
		zap.Bool("replaced", replaced),
		zap.Strings("actions", []string{ClickSignOut, ClickStillHere}),
	)
	return nil
}

func (p *LogPresenter) Close(tag string) {
	p.mu.Lock()
	delete(p.shown, tag)
	if p.last == tag {
		p.last = ""
	}
	p.mu.Unlock()
}

// Last returns the most recently shown notification still open.
func (p *LogPresenter) Last() (Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.shown[p.last]
	return n, ok
}

// LogWindowOpener records the page that would be brought forward.
type LogWindowOpener struct{}

func (LogWindowOpener) FocusOrOpen(ctx context.Context, url string) error {
	logger.Named("notification").Info("Opening sign-in page", zap.String("url", url))
	return nil
}
