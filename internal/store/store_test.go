package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edubridge/edubridge/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestProblem(t *testing.T, s *Store, title, subject, difficulty string) int64 {
	t.Helper()
	if difficulty == "" {
		difficulty = string(model.DifficultyMedium)
	}
	res, err := s.db.Exec(
		`INSERT INTO problems (title, content, subject, difficulty, explanation, correct_answer) VALUES (?, ?, ?, ?, ?, ?)`,
		title, "content of "+title, subject, difficulty, "explanation of "+title, "answer",
	)
	if err != nil {
		t.Fatalf("insertTestProblem: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("insertTestProblem: %v", err)
	}
	return id
}

// insertTestAttempt stores an attempt with a fixed timestamp. A zero number
// is stored as NULL, like rows written before attempts were numbered.
func insertTestAttempt(t *testing.T, s *Store, userID, problemID int64, answer string, correct bool, number int, at time.Time) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO attempts (user_id, problem_id, selected_answer, is_correct, attempt_number, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, problemID, answer, correct, sql.NullInt64{Int64: int64(number), Valid: number > 0}, at,
	)
	if err != nil {
		t.Fatalf("insertTestAttempt: %v", err)
	}
}

func minute(n int) time.Time {
	return time.Date(2025, 3, 1, 9, n, 0, 0, time.UTC)
}

func TestProblemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.ProblemCount()
	if err != nil {
		t.Fatalf("ProblemCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 problems, got %d", count)
	}

	list, err := s.ListProblemsFiltered(ctx, "", "")
	if err != nil {
		t.Fatalf("ListProblemsFiltered: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", list)
	}

	id := insertTestProblem(t, s, "Fractions", "Math", "")
	p, err := s.GetProblem(ctx, id)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if p.Title != "Fractions" || p.Subject != "Math" {
		t.Errorf("unexpected problem: %+v", p)
	}
	if p.Difficulty != model.DifficultyMedium {
		t.Errorf("expected default difficulty medium, got %q", p.Difficulty)
	}

	if _, err := s.GetProblem(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteProblem(id); err != nil {
		t.Fatalf("DeleteProblem: %v", err)
	}
	if err := s.DeleteProblem(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListProblemsFiltered(t *testing.T) {
	s := newTestStore(t)
	insertTestProblem(t, s, "P1", "Math", "easy")
	insertTestProblem(t, s, "P2", "Math", "hard")
	insertTestProblem(t, s, "P3", "English", "easy")

	tests := []struct {
		name       string
		subject    string
		difficulty string
		wantCount  int
	}{
		{"no filter", "", "", 3},
		{"by subject", "Math", "", 2},
		{"by difficulty", "", "easy", 2},
		{"by both", "Math", "easy", 1},
		{"no match", "English", "hard", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := s.ListProblemsFiltered(context.Background(), tt.subject, tt.difficulty)
			if err != nil {
				t.Fatalf("ListProblemsFiltered: %v", err)
			}
			if len(ps) != tt.wantCount {
				t.Errorf("expected %d problems, got %d", tt.wantCount, len(ps))
			}
		})
	}
}

func TestListDistinctSubjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	subjects, err := s.ListDistinctSubjects(ctx)
	if err != nil {
		t.Fatalf("ListDistinctSubjects: %v", err)
	}
	if len(subjects) != 0 {
		t.Errorf("expected 0 subjects, got %v", subjects)
	}

	insertTestProblem(t, s, "P1", "Science", "")
	insertTestProblem(t, s, "P2", "Math", "")
	insertTestProblem(t, s, "P3", "Math", "")
	insertTestProblem(t, s, "P4", "", "")

	subjects, _ = s.ListDistinctSubjects(ctx)
	if len(subjects) != 2 || subjects[0] != "Math" || subjects[1] != "Science" {
		t.Errorf("expected [Math Science], got %v", subjects)
	}
}

func TestCheckAnswer(t *testing.T) {
	p := model.Problem{CorrectAnswer: "Seoul"}
	tests := []struct {
		answer string
		want   bool
	}{
		{"Seoul", true},
		{"  seoul ", true},
		{"SEOUL", true},
		{"Busan", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := CheckAnswer(p, tt.answer); got != tt.want {
			t.Errorf("CheckAnswer(%q) = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestRecordAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := insertTestProblem(t, s, "P1", "Math", "")
	spent := 30

	first, err := s.RecordAttempt(ctx, 1, pid, "wrong", &spent)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if first.IsCorrect || first.AttemptNumber != 1 || first.ID == 0 || first.CompletedAt == nil {
		t.Errorf("unexpected first attempt: %+v", first)
	}

	second, err := s.RecordAttempt(ctx, 1, pid, "Answer", nil)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if !second.IsCorrect || second.AttemptNumber != 2 {
		t.Errorf("unexpected second attempt: %+v", second)
	}

	// Numbering is per user.
	other, _ := s.RecordAttempt(ctx, 2, pid, "wrong", nil)
	if other.AttemptNumber != 1 {
		t.Errorf("expected attempt 1 for another user, got %d", other.AttemptNumber)
	}

	if _, err := s.RecordAttempt(ctx, 1, 9999, "x", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing problem, got %v", err)
	}

	attempts, err := s.ListAttempts(ctx, 1)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[1].TimeSpent == nil || *attempts[1].TimeSpent != 30 {
		t.Errorf("expected time spent 30 on first attempt, got %v", attempts[1].TimeSpent)
	}
}

func TestFetchIncorrectAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	math := insertTestProblem(t, s, "Fractions", "Math", "easy")
	gone := insertTestProblem(t, s, "Deleted", "Science", "")

	insertTestAttempt(t, s, 1, math, "a", false, 1, minute(1))
	insertTestAttempt(t, s, 1, math, "answer", true, 2, minute(2))
	insertTestAttempt(t, s, 1, gone, "b", false, 0, minute(3))
	insertTestAttempt(t, s, 1, math, "c", false, 3, minute(4))
	insertTestAttempt(t, s, 2, math, "other user", false, 1, minute(5))

	if err := s.DeleteProblem(gone); err != nil {
		t.Fatalf("DeleteProblem: %v", err)
	}

	records, err := s.FetchIncorrectAttempts(ctx, 1)
	if err != nil {
		t.Fatalf("FetchIncorrectAttempts: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 incorrect records, got %d", len(records))
	}

	// Newest first.
	if records[0].SelectedAnswer != "c" || records[1].SelectedAnswer != "b" || records[2].SelectedAnswer != "a" {
		t.Errorf("unexpected order: %q %q %q", records[0].SelectedAnswer, records[1].SelectedAnswer, records[2].SelectedAnswer)
	}
	if !records[0].CompletedAt.Equal(minute(4)) {
		t.Errorf("expected completedAt %v, got %v", minute(4), records[0].CompletedAt)
	}
	if records[0].AttemptNumber == nil || *records[0].AttemptNumber != 3 {
		t.Errorf("expected attempt number 3, got %v", records[0].AttemptNumber)
	}

	p := records[0].Problem
	if p == nil || p.ID != math || p.Subject != "Math" || p.Difficulty != model.DifficultyEasy || p.CorrectAnswer != "answer" {
		t.Errorf("unexpected joined problem: %+v", p)
	}

	// A dangling reference keeps the record but has no problem.
	if records[1].Problem != nil {
		t.Errorf("expected nil problem for deleted row, got %+v", records[1].Problem)
	}
	if records[1].ProblemID != gone || records[1].AttemptNumber != nil {
		t.Errorf("unexpected dangling record: %+v", records[1])
	}

	empty, err := s.FetchIncorrectAttempts(ctx, 42)
	if err != nil {
		t.Fatalf("FetchIncorrectAttempts: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", empty)
	}
}

func TestFetchIncorrectAttemptsCanceled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.FetchIncorrectAttempts(ctx, 1); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestFetchResolvedProblemIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	resolved := insertTestProblem(t, s, "Resolved", "Math", "")
	stillWrong := insertTestProblem(t, s, "Still wrong", "Math", "")
	correctFirst := insertTestProblem(t, s, "Correct first", "Math", "")
	unnumbered := insertTestProblem(t, s, "Unnumbered", "Math", "")

	insertTestAttempt(t, s, 1, resolved, "x", false, 1, minute(1))
	insertTestAttempt(t, s, 1, resolved, "answer", true, 2, minute(2))

	insertTestAttempt(t, s, 1, stillWrong, "x", false, 1, minute(3))
	insertTestAttempt(t, s, 1, stillWrong, "y", false, 2, minute(4))

	insertTestAttempt(t, s, 1, correctFirst, "answer", true, 1, minute(5))
	insertTestAttempt(t, s, 1, correctFirst, "x", false, 2, minute(6))

	insertTestAttempt(t, s, 1, unnumbered, "x", false, 0, minute(7))
	insertTestAttempt(t, s, 1, unnumbered, "answer", true, 0, minute(8))

	got, err := s.FetchResolvedProblemIDs(ctx, 1)
	if err != nil {
		t.Fatalf("FetchResolvedProblemIDs: %v", err)
	}
	want := map[int64]bool{resolved: true, unnumbered: true}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for id := range want {
		if !got[id] {
			t.Errorf("expected problem %d resolved, got %v", id, got)
		}
	}

	none, _ := s.FetchResolvedProblemIDs(ctx, 2)
	if len(none) != 0 {
		t.Errorf("expected no resolved problems for user 2, got %v", none)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, _ := s.UserCount()
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{Username: "kim", DisplayName: "Kim", PasswordHash: "h", Role: model.UserRoleStudent, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(model.User{Username: "park", PasswordHash: "h", Role: model.UserRoleTeacher, Active: true}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(model.User{Username: "kim", PasswordHash: "h", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected error for duplicate username")
	}

	u, err := s.GetUserByUsername("kim")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v %v", u, err)
	}
	if u.ID != id || u.Role != model.UserRoleStudent || !u.Active {
		t.Errorf("unexpected user: %+v", u)
	}
	if missing, err := s.GetUserByUsername("nobody"); err != nil || missing != nil {
		t.Errorf("expected nil user, got %v %v", missing, err)
	}

	students, err := s.ListUsers(model.UserRoleStudent)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(students) != 1 || students[0].Username != "kim" {
		t.Errorf("expected [kim], got %+v", students)
	}
	all, _ := s.ListUsers("")
	if len(all) != 2 {
		t.Errorf("expected 2 users, got %d", len(all))
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	if err := s.ToggleUserActive(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, _ := s.CreateUser(model.User{Username: "kim", PasswordHash: "h", Role: model.UserRoleStudent, Active: true})

	token, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(ctx, token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v %v", sess, err)
	}
	if sess.UserID != id {
		t.Errorf("expected user %d, got %d", id, sess.UserID)
	}

	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(ctx, token); sess != nil {
		t.Error("expected session to be gone")
	}

	// Expired sessions are invisible and get cleaned up.
	past := time.Now().UTC().Add(-2 * AuthSessionTTL)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"expired", id, past, past.Add(AuthSessionTTL),
	); err != nil {
		t.Fatal(err)
	}
	n, err := s.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := setMetadata(s.db, importKeyPrefix+"/some/path.json", "abc123"); err != nil {
		t.Fatalf("setMetadata: %v", err)
	}
	if err := setMetadata(s.db, importKeyPrefix+"/some/path.json", "def456"); err != nil {
		t.Fatalf("setMetadata update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}

	if _, err := s.ImportProblems("bank.json", []byte(`[{"title": "T", "correct_answer": "a"}]`)); err != nil {
		t.Fatalf("ImportProblems: %v", err)
	}
	if hash, _ := s.GetImportedFileHash("bank.json"); len(hash) != 64 {
		t.Errorf("expected import to record a sha256 hex hash, got %q", hash)
	}
}

func TestImportProblems(t *testing.T) {
	s := newTestStore(t)
	data := []byte(`[
		{"title": "Addition", "subject": "Math", "difficulty": "easy", "correct_answer": "4"},
		{"title": "Capital", "subject": "Geography", "correct_answer": "Seoul", "explanation": "Largest city"}
	]`)

	n, err := s.ImportProblems("bank.json", data)
	if err != nil {
		t.Fatalf("ImportProblems: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}
	ps, _ := s.ListProblemsFiltered(context.Background(), "Geography", "")
	if len(ps) != 1 || ps[0].Difficulty != model.DifficultyMedium || ps[0].Explanation != "Largest city" {
		t.Errorf("unexpected imported problem: %+v", ps)
	}

	if _, err := s.ImportProblems("bank.json", data); !errors.Is(err, ErrAlreadyImported) {
		t.Errorf("expected ErrAlreadyImported, got %v", err)
	}
	if _, err := s.ImportProblems("bank.json", []byte(`[]`)); !errors.Is(err, ErrImportChanged) {
		t.Errorf("expected ErrImportChanged, got %v", err)
	}

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing answer", `[{"title": "No answer"}]`},
		{"bad difficulty", `[{"title": "T", "correct_answer": "a", "difficulty": "extreme"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ImportProblems(tt.name+".json", []byte(tt.data)); !errors.Is(err, ErrInvalidImport) {
				t.Errorf("expected ErrInvalidImport, got %v", err)
			}
			if hash, _ := s.GetImportedFileHash(tt.name + ".json"); hash != "" {
				t.Error("failed import must not be recorded")
			}
		})
	}

	count, _ := s.ProblemCount()
	if count != 2 {
		t.Errorf("expected failed imports to insert nothing, got %d problems", count)
	}
}

func TestProgressReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := model.ProgressReport{
		ID:        "7d444840-9dc0-11d1-b245-5ffdce74fad2",
		StudentID: 1,
		AuthorID:  2,
		Summary:   "Needs work on fractions.",
		CreatedAt: minute(10),
		Notes: model.IncorrectAnswersReport{
			IncorrectAnswers: []model.SubjectGroup{},
			Subjects:         []string{},
			Stats:            model.IncorrectAnswersStats{TotalIncorrect: 3, MostDifficultSubject: "Math"},
		},
	}
	if err := s.SaveProgressReport(ctx, report); err != nil {
		t.Fatalf("SaveProgressReport: %v", err)
	}

	got, err := s.GetProgressReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("GetProgressReport: %v", err)
	}
	if got.Summary != report.Summary || got.Notes.Stats.MostDifficultSubject != "Math" || !got.CreatedAt.Equal(report.CreatedAt) {
		t.Errorf("unexpected report: %+v", got)
	}

	if _, err := s.GetProgressReport(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListProgressReports(ctx, 1)
	if err != nil {
		t.Fatalf("ListProgressReports: %v", err)
	}
	if len(list) != 1 || list[0].ID != report.ID {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestImportProblemsStoreFailure(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	_, err := s.ImportProblems("bank.json", []byte(`[{"title": "T", "correct_answer": "a"}]`))
	if err == nil {
		t.Fatal("expected error from closed store")
	}
	if errors.Is(err, ErrInvalidImport) {
		t.Errorf("store failure must not be reported as invalid input: %v", err)
	}
}

func TestConcurrentAttemptsOnFile(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "edubridge.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}

	pid := insertTestProblem(t, s, "Fractions", "Math", "easy")
	for i := range 5 {
		insertTestAttempt(t, s, 1, pid, "wrong", false, i+1, minute(i))
	}

	const workers = 8
	const rounds = 10
	errs := make(chan error, 2*workers*rounds)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range rounds {
				answer := "wrong"
				if i%2 == 0 {
					answer = "answer"
				}
				if _, err := s.RecordAttempt(ctx, int64(100+w), pid, answer, nil); err != nil {
					errs <- fmt.Errorf("RecordAttempt: %w", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for range rounds {
				recs, err := s.FetchIncorrectAttempts(ctx, 1)
				if err != nil {
					errs <- fmt.Errorf("FetchIncorrectAttempts: %w", err)
					continue
				}
				if len(recs) != 5 {
					errs <- fmt.Errorf("expected 5 incorrect attempts, got %d", len(recs))
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for w := range workers {
		attempts, err := s.ListAttempts(ctx, int64(100+w))
		if err != nil {
			t.Fatalf("ListAttempts: %v", err)
		}
		if len(attempts) != rounds {
			t.Fatalf("worker %d: expected %d attempts, got %d", w, rounds, len(attempts))
		}
		seen := make(map[int]bool)
		for _, a := range attempts {
			seen[a.AttemptNumber] = true
		}
		if len(seen) != rounds {
			t.Errorf("worker %d: attempt numbers not unique: %v", w, seen)
		}
	}
}
