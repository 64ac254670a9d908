package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleProfessor authors courses, exams and grades submissions.
	UserRoleProfessor UserRole = "professor"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsValid reports whether r is a known role.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleProfessor, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsStaff reports whether the user may author and grade content.
func (u *User) IsStaff() bool {
	return u != nil && (u.Role == UserRoleProfessor || u.Role == UserRoleAdmin)
}

// AuthSession represents a page authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Course groups exam templates, announcements and enrolled students.
type Course struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ProfessorID int64     `json:"professor_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Announcement is a course-wide message from the professor.
type Announcement struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	AuthorID  int64     `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionType is the kind of an exam question.
type QuestionType string

const (
	QuestionCodeAnalysis   QuestionType = "code_analysis"
	QuestionOutputTracing  QuestionType = "output_tracing"
	QuestionEssay          QuestionType = "essay"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// QuestionTypes lists every question type in canonical order.
var QuestionTypes = []QuestionType{
	QuestionCodeAnalysis,
	QuestionOutputTracing,
	QuestionEssay,
	QuestionMultipleChoice,
	QuestionTrueFalse,
}

// IsValid reports whether t is a known question type.
func (t QuestionType) IsValid() bool {
	for _, qt := range QuestionTypes {
		if qt == t {
			return true
		}
	}
	return false
}

// IsManual reports whether answers of this type need a human grader.
func (t QuestionType) IsManual() bool {
	return t == QuestionEssay || t == QuestionCodeAnalysis
}

// Difficulty represents question or problem difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether d is a known difficulty.
func (d Difficulty) IsValid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// ExamTemplate is a named, timed collection of questions of one type.
type ExamTemplate struct {
	ID              int64        `json:"id"`
	CourseID        int64        `json:"course_id"`
	Title           string       `json:"title"`
	QuestionType    QuestionType `json:"question_type"`
	DurationMinutes int          `json:"duration_minutes"`
	QuestionCount   int          `json:"question_count"` // 0 means all questions
	Published       bool         `json:"published"`
	CreatedBy       int64        `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Duration returns the time allowed for one sitting.
func (t ExamTemplate) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Question is an exam question belonging to a template.
type Question struct {
	ID            int64        `json:"id"`
	TemplateID    int64        `json:"template_id"`
	CourseID      int64        `json:"course_id"`
	Type          QuestionType `json:"type"`
	Category      string       `json:"category"`
	Difficulty    Difficulty   `json:"difficulty"`
	Prompt        string       `json:"prompt"`
	CodeSnippet   string       `json:"code_snippet,omitempty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        float64      `json:"points"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Redacted returns a copy safe to show a student mid-exam.
func (q Question) Redacted() Question {
	q.CorrectAnswer = ""
	return q
}

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusSubmitted  SessionStatus = "submitted"
	StatusGraded     SessionStatus = "graded"
)

// ExamSession is one student's sitting of an exam template.
type ExamSession struct {
	ID            int64         `json:"id"`
	TemplateID    int64         `json:"template_id"`
	StudentID     int64         `json:"student_id"`
	Status        SessionStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	DeadlineAt    time.Time     `json:"deadline_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	AutoSubmitted bool          `json:"auto_submitted"`
	Score         float64       `json:"score"`
	MaxScore      float64       `json:"max_score"`
}

// Answer is a student's response to one question of a session.
type Answer struct {
	ID              int64      `json:"id"`
	SessionID       int64      `json:"session_id"`
	QuestionID      int64      `json:"question_id"`
	Position        int        `json:"position"`
	Response        string     `json:"response"`
	SavedAt         *time.Time `json:"saved_at,omitempty"`
	AutoPoints      *float64   `json:"auto_points,omitempty"`
	ProfessorPoints *float64   `json:"professor_points,omitempty"`
	Feedback        string     `json:"feedback,omitempty"`
	LLMPoints       *float64   `json:"llm_points,omitempty"`
	LLMFeedback     string     `json:"llm_feedback,omitempty"`
	NeedsManual     bool       `json:"needs_manual"`
	GradedAt        *time.Time `json:"graded_at,omitempty"`
}

// FinalPoints returns the points that count toward the session score.
func (a Answer) FinalPoints() float64 {
	if a.ProfessorPoints != nil {
		return *a.ProfessorPoints
	}
	if a.AutoPoints != nil {
		return *a.AutoPoints
	}
	return 0
}

// AwaitingGrade reports whether a human still has to grade the answer.
func (a Answer) AwaitingGrade() bool {
	return a.NeedsManual && a.ProfessorPoints == nil
}

// AttemptSource records where a correctness observation came from.
type AttemptSource string

const (
	SourcePractice AttemptSource = "practice"
	SourceExam     AttemptSource = "exam"
)

// QuestionAttempt is one observation of a user answering a question.
type QuestionAttempt struct {
	ID         int64         `json:"id"`
	UserID     int64         `json:"user_id"`
	QuestionID int64         `json:"question_id"`
	Correct    bool          `json:"correct"`
	Source     AttemptSource `json:"source"`
	CreatedAt  time.Time     `json:"created_at"`
}

// PracticeMode selects how practice questions are drawn.
type PracticeMode string

const (
	PracticeSingle PracticeMode = "single"
	PracticeMixed  PracticeMode = "mixed"
)

// PracticeStatus is the lifecycle state of a practice session.
type PracticeStatus string

const (
	PracticeActive    PracticeStatus = "active"
	PracticeCompleted PracticeStatus = "completed"
	PracticeExpired   PracticeStatus = "expired"
)

// PracticeSession is a timed, ungraded set of questions.
type PracticeSession struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"user_id"`
	CourseID     int64          `json:"course_id"`
	Mode         PracticeMode   `json:"mode"`
	QuestionType QuestionType   `json:"question_type,omitempty"`
	Category     string         `json:"category,omitempty"`
	Status       PracticeStatus `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	DeadlineAt   time.Time      `json:"deadline_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// PracticeItem is one question slot in a practice session.
type PracticeItem struct {
	ID         int64      `json:"id"`
	PracticeID int64      `json:"practice_id"`
	QuestionID int64      `json:"question_id"`
	Position   int        `json:"position"`
	Response   string     `json:"response,omitempty"`
	Correct    *bool      `json:"correct,omitempty"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// PracticeSummary totals a practice session.
type PracticeSummary struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// Problem is a LeetCode-style coding problem.
type Problem struct {
	ID          int64      `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Difficulty  Difficulty `json:"difficulty"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	StarterCode string     `json:"starter_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Solved      bool       `json:"solved"`
}

// Verdict is the runner's outcome for a problem submission.
type Verdict string

const (
	VerdictAccepted     Verdict = "accepted"
	VerdictWrongAnswer  Verdict = "wrong_answer"
	VerdictRuntimeError Verdict = "runtime_error"
	VerdictTimeLimit    Verdict = "time_limit"
	VerdictCompileError Verdict = "compile_error"
)

// IsValid reports whether v is a known verdict.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictRuntimeError, VerdictTimeLimit, VerdictCompileError:
		return true
	}
	return false
}

// ProblemSubmission is a judged attempt at a coding problem.
type ProblemSubmission struct {
	ID        int64     `json:"id"`
	ProblemID int64     `json:"problem_id"`
	UserID    int64     `json:"user_id"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	Verdict   Verdict   `json:"verdict"`
	RuntimeMS int       `json:"runtime_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Challenge is a time-boxed competition over a set of problems.
type Challenge struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	InviteCode  string             `json:"invite_code,omitempty"`
	StartsAt    time.Time          `json:"starts_at"`
	EndsAt      time.Time          `json:"ends_at"`
	CreatedBy   int64              `json:"created_by"`
	CreatedAt   time.Time          `json:"created_at"`
	Problems    []ChallengeProblem `json:"problems,omitempty"`
}

// ChallengeProblem assigns points to a problem inside a challenge.
type ChallengeProblem struct {
	ProblemID int64   `json:"problem_id"`
	Points    float64 `json:"points"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank        int        `json:"rank"`
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Points      float64    `json:"points"`
	Solved      int        `json:"solved"`
	LastSolveAt *time.Time `json:"last_solve_at,omitempty"`
}

// Solve is one accepted problem submission, the input to ranking.
type Solve struct {
	UserID      int64
	Username    string
	DisplayName string
	ProblemID   int64
	Points      float64
	At          time.Time
}

// CategoryStat aggregates a user's history in one category.
type CategoryStat struct {
	Category string  `json:"category"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// SkillReport summarizes a user's skills.
type SkillReport struct {
	Questions      []CategoryStat `json:"questions"`
	ProblemsSolved map[string]int `json:"problems_solved"`
}

// UserStats is the dashboard summary for one user.
type UserStats struct {
	ProblemsSolved     map[Difficulty]int `json:"problems_solved"`
	PracticeCompleted  int                `json:"practice_completed"`
	ExamsGraded        int                `json:"exams_graded"`
	AverageExamPercent float64            `json:"average_exam_percent"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath        string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies   bool   // Set Secure flag on cookies (disable for local dev)
	CORSOrigins     []string
	PracticeCount   int
	PracticeMinutes int
}
