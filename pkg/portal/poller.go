package portal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/pkg/client"
)

// LogPollInterval is the fixed refresh period of the system log view.
const LogPollInterval = 30 * time.Second

type logFetcher interface {
	SystemLogs(ctx context.Context, q client.LogQuery) ([]models.SystemLog, *models.Pagination, error)
}

// LogPage is one refresh of the system log view.
type LogPage struct {
	Logs  []models.SystemLog
	Pager Pager
	Err   error
}

// LogPoller refreshes the system log view at a fixed interval. Failed
// fetches are reported and the next tick tries again; there is no backoff.
type LogPoller struct {
	api      logFetcher
	query    client.LogQuery
	interval time.Duration
	logger   *zap.Logger
}

// NewLogPoller polls with query every LogPollInterval.
func NewLogPoller(api logFetcher, query client.LogQuery, logger *zap.Logger) *LogPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPoller{api: api, query: query, interval: LogPollInterval, logger: logger}
}

// Run fetches immediately, then on every tick, until ctx ends. Each result
// is passed to onPage.
func (p *LogPoller) Run(ctx context.Context, onPage func(LogPage)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx, onPage)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx, onPage)
		}
	}
}

func (p *LogPoller) fetch(ctx context.Context, onPage func(LogPage)) {
	logs, pagination, err := p.api.SystemLogs(ctx, p.query)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("failed to fetch system logs", zap.Error(err))
		onPage(LogPage{Err: err, Pager: Pager{Page: p.query.Page}})
		return
	}
	onPage(LogPage{Logs: logs, Pager: PagerFrom(pagination)})
}
