package club

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// User is one of the two fixed club members.
type User string

const (
	Manon  User = "Manon"
	Jerina User = "Jerina"
)

// Users lists every identity in display order.
var Users = []User{Manon, Jerina}

// ParseUser matches name case-insensitively against the known identities.
func ParseUser(name string) (User, error) {
	for _, u := range Users {
		if strings.EqualFold(strings.TrimSpace(name), string(u)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUser, name)
}

// Valid reports whether u is a known identity.
func (u User) Valid() bool {
	return u == Manon || u == Jerina
}

// BookStatus is the lifecycle position of a book.
type BookStatus string

const (
	StatusCurrent BookStatus = "current"
	StatusWaiting BookStatus = "waiting"
	StatusRead    BookStatus = "read"
)

// Book is a title on the club's shelf. ImageFile holds an embedded data URL and
// wins over CoverImage when both are set.
type Book struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Author     string     `json:"author"`
	Genre      string     `json:"genre,omitempty"`
	IsCurrent  bool       `json:"isCurrent"`
	Status     BookStatus `json:"status"`
	CoverImage string     `json:"coverImage,omitempty"`
	ImageFile  string     `json:"imageFile,omitempty"`
	AddedAt    time.Time  `json:"addedAt,omitzero"`
}

// CoverSource returns the image reference to display, if any.
func (b *Book) CoverSource() string {
	if b.ImageFile != "" {
		return b.ImageFile
	}
	return b.CoverImage
}

func (b *Book) setStatus(s BookStatus) {
	b.Status = s
	b.IsCurrent = s == StatusCurrent
}

// BookDraft carries the user-supplied fields of a new book.
type BookDraft struct {
	Title      string
	Author     string
	Genre      string
	CoverImage string
	ImageFile  string
}

// MaxTitleLen bounds titles and author names.
const MaxTitleLen = 200

// Validate checks a new book before it is added.
func (d *BookDraft) Validate() error {
	v := &ValidationError{}
	v.required("title", d.Title, MaxTitleLen)
	v.required("author", d.Author, MaxTitleLen)
	v.maxLen("genre", d.Genre, MaxTitleLen)
	v.coverImage(d.CoverImage)
	v.imageFile(d.ImageFile)
	return v.err()
}

func (v *ValidationError) coverImage(raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.add("coverImage", "must be an http or https URL")
	}
}

func (v *ValidationError) imageFile(raw string) {
	if raw == "" {
		return
	}
	if !strings.HasPrefix(raw, "data:image/") || !strings.Contains(raw, ";base64,") {
		v.add("imageFile", "must be a base64 image data URL")
	}
}

// BookUpdate is a partial edit. Nil fields are left alone; an empty string
// clears an optional field.
type BookUpdate struct {
	Title      *string
	Author     *string
	Genre      *string
	CoverImage *string
	ImageFile  *string
}

// Validate checks the fields the update sets. Title and author may change but
// not become blank.
func (u BookUpdate) Validate() error {
	v := &ValidationError{}
	if u.Title != nil {
		v.required("title", *u.Title, MaxTitleLen)
	}
	if u.Author != nil {
		v.required("author", *u.Author, MaxTitleLen)
	}
	if u.Genre != nil {
		v.maxLen("genre", *u.Genre, MaxTitleLen)
	}
	if u.CoverImage != nil {
		v.coverImage(*u.CoverImage)
	}
	if u.ImageFile != nil {
		v.imageFile(*u.ImageFile)
	}
	return v.err()
}

// Empty reports whether the update would change nothing.
func (u BookUpdate) Empty() bool {
	return u.Title == nil && u.Author == nil && u.Genre == nil && u.CoverImage == nil && u.ImageFile == nil
}

// QuestionSlots is the number of discussion questions per response.
const QuestionSlots = 3

// Field length caps, counted in characters.
const (
	MaxCharacterLen = 100
	MaxQuoteLen     = 300
	MaxQuestionLen  = 200
	MaxThoughtsLen  = 1000
)

// Response is one member's reflection on one book.
type Response struct {
	ID                  int64                 `json:"id"`
	BookID              int64                 `json:"bookId"`
	User                User                  `json:"user"`
	Rating              int                   `json:"rating"`
	FavoriteCharacter   string                `json:"favoriteCharacter"`
	FavoriteQuote       string                `json:"favoriteQuote"`
	DiscussionQuestions [QuestionSlots]string `json:"discussionQuestions"`
	Thoughts            string                `json:"thoughts"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt,omitzero"`
}

// Questions returns the non-blank discussion questions in order.
func (r *Response) Questions() []string {
	var out []string
	for _, q := range r.DiscussionQuestions {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out
}

// storedResponse is the on-disk shape, which may still carry the single
// discussionQuestion field written by older versions.
type storedResponse struct {
	Response
	DiscussionQuestions json.RawMessage `json:"discussionQuestions,omitempty"`
	DiscussionQuestion  *string         `json:"discussionQuestion,omitempty"`
}

// normalize converts a stored record into a Response. migrated is true when
// the record used the legacy single-question shape.
func (s *storedResponse) normalize() (r Response, migrated bool, err error) {
	r = s.Response
	r.DiscussionQuestions = [QuestionSlots]string{}
	if len(s.DiscussionQuestions) > 0 && string(s.DiscussionQuestions) != "null" {
		var qs []string
		if err := json.Unmarshal(s.DiscussionQuestions, &qs); err != nil {
			return Response{}, false, fmt.Errorf("response %d: discussion questions: %w", s.ID, err)
		}
		copy(r.DiscussionQuestions[:], qs)
		return r, len(qs) != QuestionSlots, nil
	}
	if s.DiscussionQuestion != nil {
		r.DiscussionQuestions[0] = *s.DiscussionQuestion
	}
	return r, true, nil
}

// ResponseDraft carries a questionnaire submission.
type ResponseDraft struct {
	BookID              int64
	User                User
	Rating              int
	FavoriteCharacter   string
	FavoriteQuote       string
	DiscussionQuestions [QuestionSlots]string
	Thoughts            string
}

// Validate checks required fields and length caps. At least the first
// discussion question is required; the other two are optional.
func (d *ResponseDraft) Validate() error {
	v := &ValidationError{}
	if !d.User.Valid() {
		v.add("user", "must be Manon or Jerina")
	}
	if d.Rating < 1 || d.Rating > 5 {
		v.add("rating", "must be between 1 and 5")
	}
	v.required("favoriteCharacter", d.FavoriteCharacter, MaxCharacterLen)
	v.required("favoriteQuote", d.FavoriteQuote, MaxQuoteLen)
	v.required("thoughts", d.Thoughts, MaxThoughtsLen)
	for i, q := range d.DiscussionQuestions {
		field := fmt.Sprintf("discussionQuestions[%d]", i)
		if i == 0 {
			v.required(field, q, MaxQuestionLen)
			continue
		}
		v.maxLen(field, q, MaxQuestionLen)
	}
	return v.err()
}

// BookResponses holds at most one response per member for a book.
type BookResponses struct {
	Manon  *Response
	Jerina *Response
}

// For returns the slot belonging to u.
func (br BookResponses) For(u User) *Response {
	switch u {
	case Manon:
		return br.Manon
	case Jerina:
		return br.Jerina
	}
	return nil
}

// Complete reports whether both members have responded.
func (br BookResponses) Complete() bool {
	return br.Manon != nil && br.Jerina != nil
}
