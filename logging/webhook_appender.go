package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/utils"
)

const (
	defaultWebhookQueueSize = 1000
	webhookPostTimeout      = 5 * time.Second
)

// WebhookConfig contains the inputs to forward log lines to a chat webhook.
type WebhookConfig struct {
	URL string
	// MinLevel is the lowest level forwarded. Defaults to INFO.
	MinLevel Level
}

type webhookMessage struct {
	Text string `json:"text"`
}

// NewWebhookAppender creates a WebhookAppender. Posting happens on a background worker so a slow
// or unreachable endpoint never blocks the caller of a log method.
func NewWebhookAppender(config WebhookConfig) (*WebhookAppender, error) {
	return newWebhookAppender(config, NewLogger("webhooklogger"))
}

func newWebhookAppender(config WebhookConfig, loggerWithoutWebhook Logger) (*WebhookAppender, error) {
	if config.URL == "" {
		return nil, errors.New("webhook appender requires a url")
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	wa := &WebhookAppender{
		url:                  config.URL,
		minLevel:             config.MinLevel.AsZap(),
		client:               &http.Client{Timeout: webhookPostTimeout},
		maxQueueSize:         defaultWebhookQueueSize,
		cancelCtx:            cancelCtx,
		cancel:               cancel,
		loggerWithoutWebhook: loggerWithoutWebhook,
	}
	wa.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(wa.backgroundWorker, wa.activeBackgroundWorkers.Done)
	return wa, nil
}

// WebhookAppender posts `{"text": "[time] message"}` bodies to a webhook URL.
type WebhookAppender struct {
	url      string
	minLevel zapcore.Level
	client   *http.Client

	syncMu       sync.Mutex
	toSendMutex  sync.Mutex
	toSend       []string
	maxQueueSize int
	// dropped counts lines pushed out of a full queue since the last report.
	dropped int

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup

	// Failures are reported here rather than through a logger that may contain this appender.
	loggerWithoutWebhook Logger
}

// Write queues a line for the background worker.
func (wa *WebhookAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level < wa.minLevel {
		return nil
	}
	line := fmt.Sprintf("[%s] %s", entry.Time.Format(DefaultTimeFormatStr), entry.Message)

	wa.toSendMutex.Lock()
	defer wa.toSendMutex.Unlock()
	if len(wa.toSend) >= wa.maxQueueSize {
		wa.toSend = wa.toSend[1:]
		wa.dropped++
	}
	wa.toSend = append(wa.toSend, line)
	return nil
}

func (wa *WebhookAppender) queueSize() int {
	wa.toSendMutex.Lock()
	defer wa.toSendMutex.Unlock()
	return len(wa.toSend)
}

func (wa *WebhookAppender) backgroundWorker() {
	normalInterval := 100 * time.Millisecond
	abnormalInterval := 5 * time.Second
	interval := normalInterval
	for {
		cancelled := false
		if !utils.SelectContextOrWait(wa.cancelCtx, interval) {
			cancelled = true
		}
		err := wa.Sync()
		if err != nil && !errors.Is(err, context.Canceled) {
			interval = abnormalInterval
			wa.loggerWithoutWebhook.Infof("error posting log to webhook: %s", err)
		} else {
			interval = normalInterval
		}
		if cancelled {
			return
		}
	}
}

// Dropped returns how many lines were dropped from a full queue and not yet reported.
func (wa *WebhookAppender) Dropped() int {
	wa.toSendMutex.Lock()
	defer wa.toSendMutex.Unlock()
	return wa.dropped
}

// Sync posts every queued line in order. The first failing line stays at the head of the queue.
// Once the queue is drained, lines dropped since the last drain are reported.
func (wa *WebhookAppender) Sync() error {
	wa.syncMu.Lock()
	defer wa.syncMu.Unlock()
	for {
		wa.toSendMutex.Lock()
		if len(wa.toSend) == 0 {
			dropped := wa.dropped
			wa.dropped = 0
			wa.toSendMutex.Unlock()
			if dropped > 0 {
				wa.loggerWithoutWebhook.Warnf("webhook queue was full, dropped %d log lines", dropped)
			}
			return nil
		}
		line := wa.toSend[0]
		wa.toSendMutex.Unlock()

		if err := wa.post(line); err != nil {
			return err
		}

		wa.toSendMutex.Lock()
		if len(wa.toSend) > 0 && wa.toSend[0] == line {
			wa.toSend = wa.toSend[1:]
		}
		wa.toSendMutex.Unlock()
	}
}

func (wa *WebhookAppender) post(line string) error {
	body, err := json.Marshal(webhookMessage{Text: line})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), webhookPostTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wa.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := wa.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "posting to webhook")
	}
	utils.UncheckedError(resp.Body.Close())
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

// Close the WebhookAppender. This makes a best effort at sending queued lines before returning.
func (wa *WebhookAppender) Close() {
	for i := 0; i < 100; i++ {
		if wa.queueSize() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	wa.cancel()
	wa.activeBackgroundWorkers.Wait()
}
