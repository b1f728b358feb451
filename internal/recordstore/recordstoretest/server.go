// Пакет recordstoretest — in-memory Record Store поверх httptest для тестов.
// Повторяет поведение json-server: фильтр по полям в query, id назначает
// сервер, 404 для отсутствующих записей. Поддерживает инъекцию сбоев.
package recordstoretest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/bigkaa/goartstore/config-console/internal/domain/model"
)

// Resource — имя коллекции по умолчанию.
const Resource = "configs"

// Server — фейковый Record Store.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	nextID  int
	order   []model.EntryID
	records map[model.EntryID]model.Entry
	calls   map[string]int

	failList   int
	failDelete map[model.EntryID]int
	failCreate func(model.Entry) int
}

// New запускает фейковый Record Store и регистрирует его остановку в t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:     1,
		records:    make(map[model.EntryID]model.Entry),
		calls:      make(map[string]int),
		failDelete: make(map[model.EntryID]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+Resource, s.handleList)
	mux.HandleFunc("POST /"+Resource, s.handleCreate)
	mux.HandleFunc("PUT /"+Resource+"/{id}", s.handleReplace)
	mux.HandleFunc("DELETE /"+Resource+"/{id}", s.handleDelete)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Seed добавляет записи как есть; пустой id назначается сервером.
// Возвращает записи с назначенными идентификаторами.
func (s *Server) Seed(entries ...model.Entry) []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = s.allocID()
		}
		s.put(e)
		out = append(out, e)
	}
	return out
}

// Entries возвращает текущее содержимое хранилища в порядке вставки.
func (s *Server) Entries() []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Calls возвращает число запросов указанного метода (GET, POST, PUT, DELETE).
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls возвращает общее число запросов.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// FailList заставляет GET отвечать статусом status (0 — отключить).
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = status
}

// FailDelete заставляет DELETE /:id отвечать статусом status без удаления.
func (s *Server) FailDelete(id model.EntryID, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete[id] = status
}

// FailCreate задаёт функцию, возвращающую статус ошибки для создаваемой записи
// (0 — создать запись).
func (s *Server) FailCreate(fn func(model.Entry) int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = fn
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[http.MethodGet]++

	if s.failList != 0 {
		http.Error(w, "list failure", s.failList)
		return
	}

	app := r.URL.Query().Get("application")
	out := make([]model.Entry, 0, len(s.order))
	for _, id := range s.order {
		e := s.records[id]
		if app != "" && e.Application != app {
			continue
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[http.MethodPost]++

	var e model.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.failCreate != nil {
		if status := s.failCreate(e); status != 0 {
			http.Error(w, "create failure", status)
			return
		}
	}

	e.ID = s.allocID()
	s.put(e)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[http.MethodPut]++

	id := model.EntryID(r.PathValue("id"))
	if _, ok := s.records[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}

	var e model.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.ID = id
	s.records[id] = e
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[http.MethodDelete]++

	id := model.EntryID(r.PathValue("id"))
	if status, ok := s.failDelete[id]; ok {
		http.Error(w, "delete failure", status)
		return
	}
	if _, ok := s.records[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}

	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(x model.EntryID) bool { return x == id })
	writeJSON(w, http.StatusOK, map[string]any{})
}

// allocID выдаёт следующий свободный идентификатор. Вызывается под mu.
func (s *Server) allocID() model.EntryID {
	for {
		id := model.EntryID(strconv.Itoa(s.nextID))
		s.nextID++
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

// put сохраняет запись. Вызывается под mu.
func (s *Server) put(e model.Entry) {
	if _, exists := s.records[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.records[e.ID] = e
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
