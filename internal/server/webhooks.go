package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/domain"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the activity log and posts new rows to each
// configured sink. Each hook keeps its own cursor; delivery stops at the
// first failure and resumes from that row on the next tick.
type webhookDispatcher struct {
	board    board.Board
	webhooks []config.Webhook
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

func startWebhookDispatcher(b board.Board, hooks []config.Webhook) {
	if len(hooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		board:    b,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(idx int, hook config.Webhook) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	activities, err := d.board.Repo.ActivitiesAfter(ctx, defaultWebhookBatch, cursor, "")
	if err != nil {
		log.Printf("webhook: fetch activities failed: %v", err)
		return
	}
	if len(activities) == 0 {
		return
	}
	filter := newActivityFilter(hook.Events)
	for _, act := range activities {
		if !filter.match(act.Type) {
			d.setCursor(idx, act.ID)
			continue
		}
		if err := d.postActivity(ctx, hook, act); err != nil {
			log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, act.ID)
	}
}

func (d *webhookDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	// A fresh cursor starts at the newest row so restarts do not replay
	// the whole history to the sink.
	cur, err := d.board.Repo.LatestActivityID(context.Background(), "")
	if err != nil {
		log.Printf("webhook: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookActivity struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId"`
	ItemKind  string          `json:"itemKind"`
	ItemID    string          `json:"itemId,omitempty"`
	UserID    string          `json:"userId"`
	TS        string          `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) postActivity(ctx context.Context, hook config.Webhook, act domain.Activity) error {
	payload := json.RawMessage([]byte("{}"))
	if act.Payload != "" && json.Valid([]byte(act.Payload)) {
		payload = json.RawMessage([]byte(act.Payload))
	}
	body := webhookActivity{
		ID:        act.ID,
		Type:      act.Type,
		ProjectID: act.ProjectID,
		ItemKind:  act.ItemKind,
		ItemID:    act.ItemID,
		UserID:    act.UserID,
		TS:        act.TS,
		Payload:   payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Opsboard-Event", act.Type)
	req.Header.Set("X-Opsboard-Delivery", fmt.Sprintf("%d", act.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Opsboard-Secret", hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type activityFilter struct {
	all bool
	set map[string]struct{}
}

func newActivityFilter(events []string) activityFilter {
	if len(events) == 0 {
		return activityFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return activityFilter{all: true}
	}
	return activityFilter{set: set}
}

func (f activityFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
