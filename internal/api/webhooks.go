package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxelight/internal/eventbus"
	"github.com/annel0/voxelight/internal/logging"
)

// ErrInvalidWebhook возвращается для webhook без URL или без событий
var ErrInvalidWebhook = errors.New("invalid webhook")

// OutboundWebhook представляет исходящий webhook
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required"` // Типы событий шины, "*" - все
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // Таймаут в секундах
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookEvent - тело POST-запроса к webhook
type OutboundWebhookEvent struct {
	EventType string          `json:"event_type"`
	Timestamp int64           `json:"timestamp"`
	World     string          `json:"world"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// OutboundWebhookManager пересылает события мира внешним HTTP-получателям
type OutboundWebhookManager struct {
	webhooks   map[uint64]*OutboundWebhook
	eventQueue chan OutboundWebhookEvent
	mu         sync.RWMutex
	nextID     uint64
	httpClient *http.Client
	world      string
	retryDelay time.Duration
	logger     *logging.Logger
	inflight   sync.WaitGroup
}

// NewOutboundWebhookManager создает менеджер. Доставка начинается после Run.
func NewOutboundWebhookManager(world string, logger *logging.Logger) *OutboundWebhookManager {
	if logger == nil {
		logger = logging.GetComponentLogger("webhooks")
	}
	return &OutboundWebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		eventQueue: make(chan OutboundWebhookEvent, 1000),
		nextID:     1,
		world:      world,
		retryDelay: time.Second,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// AddWebhook проверяет и регистрирует webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) (*OutboundWebhook, error) {
	u, err := url.Parse(webhook.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Join(ErrInvalidWebhook, errors.New("URL должен быть http(s)"))
	}
	if len(webhook.Events) == 0 {
		return nil, errors.Join(ErrInvalidWebhook, errors.New("не указаны события"))
	}

	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true
	webhook.LastUsed = nil
	webhook.FailureCount = 0

	if webhook.Timeout <= 0 {
		webhook.Timeout = 30
	}
	if webhook.RetryCount <= 0 {
		webhook.RetryCount = 3
	}

	owm.webhooks[webhook.ID] = &webhook
	copied := webhook
	return &copied, nil
}

// GetWebhooks возвращает копии всех webhook'ов по возрастанию ID
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// GetWebhook возвращает копию webhook по ID
func (owm *OutboundWebhookManager) GetWebhook(id uint64) (OutboundWebhook, bool) {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhook, exists := owm.webhooks[id]
	if !exists {
		return OutboundWebhook{}, false
	}
	return *webhook, true
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// SendEvent ставит событие в очередь. false - очередь переполнена.
func (owm *OutboundWebhookManager) SendEvent(eventType, source string, data json.RawMessage) bool {
	event := OutboundWebhookEvent{
		EventType: eventType,
		Timestamp: time.Now().Unix(),
		World:     owm.world,
		Source:    source,
		Data:      data,
	}

	select {
	case owm.eventQueue <- event:
		return true
	default:
		owm.logger.Warn("⚠️ Очередь webhook'ов переполнена, событие %s пропущено", eventType)
		return false
	}
}

// AttachBus пересылает в webhook'и все события шины
func (owm *OutboundWebhookManager) AttachBus(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		owm.SendEvent(ev.EventType, ev.Source, ev.Payload)
	})
}

// Run доставляет события до отмены ctx и дожидается отправок в полёте
func (owm *OutboundWebhookManager) Run(ctx context.Context) {
	defer owm.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-owm.eventQueue:
			owm.processEvent(ctx, event)
		}
	}
}

// processEvent раздаёт событие подписанным webhook'ам
func (owm *OutboundWebhookManager) processEvent(ctx context.Context, event OutboundWebhookEvent) {
	owm.mu.RLock()
	var targets []OutboundWebhook
	for _, webhook := range owm.webhooks {
		if webhook.Active && isSubscribedToEvent(webhook, event.EventType) {
			targets = append(targets, *webhook)
		}
	}
	owm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		owm.logger.Error("❌ Ошибка маршалинга события %s: %v", event.EventType, err)
		return
	}

	for _, webhook := range targets {
		owm.inflight.Add(1)
		go func(webhook OutboundWebhook) {
			defer owm.inflight.Done()
			owm.sendToWebhook(ctx, webhook, event.EventType, body)
		}(webhook)
	}
}

func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribed := range webhook.Events {
		if subscribed == eventType || subscribed == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие с повторами и обновляет статистику webhook
func (owm *OutboundWebhookManager) sendToWebhook(ctx context.Context, webhook OutboundWebhook, eventType string, body []byte) {
	var signature string
	if webhook.Secret != "" {
		signature = generateSignature(body, webhook.Secret)
	}

	success := false
	for attempt := 0; attempt <= webhook.RetryCount; attempt++ {
		if attempt > 0 && !sleepContext(ctx, time.Duration(attempt)*owm.retryDelay) {
			break
		}

		status, err := owm.post(ctx, webhook, eventType, signature, body)
		if err != nil {
			owm.logger.Warn("⚠️ Попытка %d/%d для webhook %s: %v", attempt+1, webhook.RetryCount+1, webhook.Name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			owm.logger.Debug("✅ Событие %s доставлено в webhook %s", eventType, webhook.Name)
			break
		}
		owm.logger.Warn("⚠️ Webhook %s вернул статус %d на попытке %d", webhook.Name, status, attempt+1)
	}

	owm.mu.Lock()
	defer owm.mu.Unlock()
	stored, ok := owm.webhooks[webhook.ID]
	if !ok {
		return
	}
	now := time.Now()
	stored.LastUsed = &now
	if !success {
		stored.FailureCount++
	}
}

func (owm *OutboundWebhookManager) post(ctx context.Context, webhook OutboundWebhook, eventType, signature string, body []byte) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(webhook.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voxelight/1.0")
	req.Header.Set("X-Event-Type", eventType)
	req.Header.Set("X-World", owm.world)
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// generateSignature генерирует HMAC-SHA256 подпись тела
func generateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// EventTypes возвращает типы событий, доступные для подписки
func EventTypes() []string {
	return []string{
		eventbus.EventVoxelChanged,
		eventbus.EventChunksModified,
		eventbus.EventWorldLoaded,
		eventbus.EventSnapshotSaved,
	}
}
