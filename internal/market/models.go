// Package market holds the user-facing resource clients (auth, tasks,
// applications) and the entity types shared with the admin clients.
package market

import (
	"time"

	"github.com/code-and-cash/cashctl/internal/session"
)

// Display fallbacks for null references.
const (
	UnknownUser = "Unknown User"
	UnknownTask = "Unknown Task"
)

// TaskStatus is the lifecycle of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSubmitted  TaskStatus = "submitted"
	TaskCancelled  TaskStatus = "cancelled"
)

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationInReview ApplicationStatus = "in_review"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// SubmissionStatus is the review state of submitted work.
type SubmissionStatus string

const (
	SubmissionPending           SubmissionStatus = "pending"
	SubmissionApproved          SubmissionStatus = "approved"
	SubmissionRejected          SubmissionStatus = "rejected"
	SubmissionRevisionRequested SubmissionStatus = "revision_requested"
)

// User is an account as returned by the backend.
type User struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Role      session.Role `json:"role"`
	Status    string       `json:"status,omitempty"`
	CreatedAt time.Time    `json:"createdAt,omitempty"`
}

// SessionUser projects the account onto the cached session profile.
func (u User) SessionUser() session.User {
	return session.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// DisplayName returns the name, the email, or the unknown fallback.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return UnknownUser
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return UnknownUser
	}
}

// Key returns the identifier used by list controllers.
func (u User) Key() string { return u.ID }

// Task is a unit of paid work posted on the marketplace.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Difficulty  string     `json:"difficulty,omitempty"`
	Payout      float64    `json:"payout,omitempty"`
	Status      TaskStatus `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedBy   *User      `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
}

// Key returns the identifier used by list controllers.
func (t Task) Key() string { return t.ID }

// DisplayTitle returns the title or the unknown fallback.
func (t *Task) DisplayTitle() string {
	if t == nil || t.Title == "" {
		return UnknownTask
	}
	return t.Title
}

// Application links a user to a task they want to work on.
type Application struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	TaskID      string            `json:"taskId"`
	User        *User             `json:"user,omitempty"`
	Task        *Task             `json:"task,omitempty"`
	Message     string            `json:"message,omitempty"`
	Status      ApplicationStatus `json:"status"`
	Note        string            `json:"note,omitempty"`
	Submissions []Submission      `json:"submissions,omitempty"`
	CreatedAt   time.Time         `json:"createdAt,omitempty"`
}

// Key returns the identifier used by list controllers.
func (a Application) Key() string { return a.ID }

// Submission is a set of files delivered for an accepted application.
type Submission struct {
	ID            string           `json:"id"`
	ApplicationID string           `json:"applicationId,omitempty"`
	UserID        string           `json:"userId,omitempty"`
	TaskID        string           `json:"taskId,omitempty"`
	User          *User            `json:"user,omitempty"`
	Task          *Task            `json:"task,omitempty"`
	Files         []SubmittedFile  `json:"files,omitempty"`
	Status        SubmissionStatus `json:"status"`
	Feedback      string           `json:"feedback,omitempty"`
	SubmittedAt   time.Time        `json:"submittedAt,omitempty"`
}

// Key returns the identifier used by list controllers.
func (s Submission) Key() string { return s.ID }

// SubmittedFile describes a stored upload.
type SubmittedFile struct {
	Name     string `json:"originalName,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}
