// Пакет promotion — перенос набора записей с исходной метки на целевую.
//
// Жизненный цикл одного запуска:
//
//	idle → confirming → deleting → creating → idle
//
// Отказ подтверждения возвращает confirming → idle. Из deleting и creating
// допустим аварийный выход в idle. Отката уже выполненных вызовов нет:
// целостность после сбоя восстанавливается журналом намерений (Recover).
package promotion

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние запуска промоушена.
type State string

const (
	// StateIdle — промоушен не выполняется
	StateIdle State = "idle"
	// StateConfirming — ожидание подтверждения пользователя
	StateConfirming State = "confirming"
	// StateDeleting — удаление записей целевой метки
	StateDeleting State = "deleting"
	// StateCreating — создание записей под целевой меткой
	StateCreating State = "creating"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateIdle:       {StateConfirming: true},
	StateConfirming: {StateIdle: true, StateDeleting: true},
	StateDeleting:   {StateCreating: true, StateIdle: true},
	StateCreating:   {StateIdle: true},
}

// StateMachine — конечный автомат одного запуска промоушена.
// Потокобезопасен: состояние читается обработчиками API во время выполнения.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// NewStateMachine создаёт автомат в состоянии idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		history: make([]TransitionRecord, 0, 4),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// CanTransitionTo проверяет, допустим ли переход в target.
func (sm *StateMachine) CanTransitionTo(target State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return validTransitions[sm.current][target]
}

// TransitionTo выполняет переход в target.
// Недопустимый переход — *TransitionError с кодом INVALID_TRANSITION.
func (sm *StateMachine) TransitionTo(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !isValidState(target) {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("недопустимое состояние: %q", target),
		}
	}
	if !validTransitions[sm.current][target] {
		return &TransitionError{
			Code:    "INVALID_TRANSITION",
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isValidState(s State) bool {
	switch s {
	case StateIdle, StateConfirming, StateDeleting, StateCreating:
		return true
	default:
		return false
	}
}
