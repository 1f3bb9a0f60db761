package auth

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrOperatorExists     = errors.New("operator already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Operator - учётная запись, которой разрешено изменять мир через API
type Operator struct {
	ID           uint64
	Name         string // Уникальное имя (без учёта регистра)
	PasswordHash string // bcrypt
	IsAdmin      bool   // Может загружать и удалять снимки
	CreatedAt    time.Time
}

// OperatorStore - потокобезопасное хранилище операторов в памяти.
// Заполняется из конфигурации при старте сервера.
type OperatorStore struct {
	mu        sync.RWMutex
	operators map[string]*Operator // ключ - имя в нижнем регистре
	nextID    uint64
}

// NewOperatorStore создаёт пустое хранилище
func NewOperatorStore() *OperatorStore {
	return &OperatorStore{
		operators: make(map[string]*Operator),
		nextID:    1,
	}
}

// Add добавляет оператора с уже вычисленным bcrypt-хешем
func (s *OperatorStore) Add(name, passwordHash string, isAdmin bool) (*Operator, error) {
	if name == "" || passwordHash == "" {
		return nil, errors.New("имя и хеш пароля оператора обязательны")
	}

	key := normalize(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.operators[key]; exists {
		return nil, ErrOperatorExists
	}

	op := &Operator{
		ID:           s.nextID,
		Name:         name,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.operators[key] = op
	return op, nil
}

// Get ищет оператора по имени
func (s *OperatorStore) Get(name string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operators[normalize(name)]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return op, nil
}

// ValidateCredentials проверяет имя и пароль
func (s *OperatorStore) ValidateCredentials(name, password string) (*Operator, error) {
	op, err := s.Get(name)
	if errors.Is(err, ErrOperatorNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(op.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

// Names возвращает отсортированный список имён операторов
func (s *OperatorStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.operators))
	for _, op := range s.operators {
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(name)
}
