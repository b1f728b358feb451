package promotion

import (
	"errors"
	"testing"
)

// TestStateMachine_Lifecycle проверяет полный цикл idle → confirming → deleting → creating → idle.
func TestStateMachine_Lifecycle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("начальное состояние = %s, ожидается idle", sm.Current())
	}

	for _, target := range []State{StateConfirming, StateDeleting, StateCreating, StateIdle} {
		if err := sm.TransitionTo(target); err != nil {
			t.Fatalf("переход в %s: %v", target, err)
		}
	}

	history := sm.History()
	if len(history) != 4 {
		t.Fatalf("len(History) = %d, ожидается 4", len(history))
	}
	if history[0].From != StateIdle || history[3].To != StateIdle {
		t.Errorf("история = %+v", history)
	}
}

// TestStateMachine_Transitions проверяет матрицу переходов.
func TestStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		path []State
		to   State
		ok   bool
	}{
		{nil, StateConfirming, true},
		{nil, StateDeleting, false},
		{nil, StateCreating, false},
		{[]State{StateConfirming}, StateIdle, true},
		{[]State{StateConfirming}, StateCreating, false},
		{[]State{StateConfirming, StateDeleting}, StateIdle, true},
		{[]State{StateConfirming, StateDeleting}, StateConfirming, false},
		{[]State{StateConfirming, StateDeleting, StateCreating}, StateDeleting, false},
		{[]State{StateConfirming, StateDeleting, StateCreating}, StateIdle, true},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		for _, s := range tt.path {
			if err := sm.TransitionTo(s); err != nil {
				t.Fatalf("подготовка %v: %v", tt.path, err)
			}
		}

		if got := sm.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s → %s: CanTransitionTo = %v, ожидается %v", sm.Current(), tt.to, got, tt.ok)
		}

		from := sm.Current()
		err := sm.TransitionTo(tt.to)
		if tt.ok {
			if err != nil {
				t.Errorf("%s → %s: неожиданная ошибка %v", from, tt.to, err)
			}
			continue
		}
		var te *TransitionError
		if !errors.As(err, &te) || te.Code != "INVALID_TRANSITION" {
			t.Errorf("%s → %s: ожидалась INVALID_TRANSITION, получено %v", from, tt.to, err)
		}
		if sm.Current() != from {
			t.Errorf("после ошибки состояние изменилось: %s", sm.Current())
		}
	}
}

// TestStateMachine_UnknownState проверяет отказ для неизвестного состояния.
func TestStateMachine_UnknownState(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.TransitionTo(State("archived")); err == nil {
		t.Error("ожидалась ошибка для неизвестного состояния")
	}
}
