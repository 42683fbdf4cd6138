package club

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Club is the single source of truth for the selected user, the shelf and the
// responses. Every mutation is written to the store before it becomes visible
// in memory, so a failed write leaves the Club exactly as it was.
type Club struct {
	mu    sync.Mutex
	store KeyValueStore
	log   *zap.Logger
	clock func() time.Time
	seed  bool

	user      User
	books     []Book
	responses []Response
}

// Option configures a Club.
type Option func(*Club)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Club) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Club) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithSeed controls whether an empty store starts with the built-in shelf.
func WithSeed(enabled bool) Option {
	return func(c *Club) { c.seed = enabled }
}

// New builds a Club over store. Call Load before using it.
func New(store KeyValueStore, opts ...Option) *Club {
	c := &Club{
		store:     store,
		log:       zap.NewNop(),
		clock:     time.Now,
		seed:      true,
		books:     []Book{},
		responses: []Response{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens the SQLite store at dbPath and loads a Club from it.
func Open(dbPath string, opts ...Option) (*Club, error) {
	store, err := OpenStore(dbPath)
	if err != nil {
		return nil, &StoreError{Op: "open", Key: dbPath, Err: err}
	}
	c := New(store, opts...)
	if err := c.Load(); err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying store when it supports closing.
func (c *Club) Close() error {
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Club) now() time.Time {
	return c.clock().UTC().Truncate(time.Millisecond)
}

// SeedBooks returns the shelf an empty store starts with.
func SeedBooks() []Book {
	day := func(s string) time.Time {
		t, _ := time.Parse(time.DateOnly, s)
		return t.UTC()
	}
	return []Book{
		{ID: 1, Title: "The Midnight Library", Author: "Matt Haig", Status: StatusRead, AddedAt: day("2023-01-01")},
		{ID: 2, Title: "Project Hail Mary", Author: "Andy Weir", Status: StatusRead, AddedAt: day("2023-02-01")},
		{
			ID: 3, Title: "The House in the Cerulean Sea", Author: "TJ Klune", Status: StatusRead,
			CoverImage: "https://images-na.ssl-images-amazon.com/images/I/71Xw6KZ2BRL._AC_UL600_SR600,400_.jpg",
			AddedAt:    day("2023-03-01"),
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load replaces the in-memory state with what the store holds.
func (c *Club) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, err := c.loadUser()
	if err != nil {
		return err
	}
	books, repaired, err := c.loadBooks()
	if err != nil {
		return err
	}
	responses, migrated, err := c.loadResponses()
	if err != nil {
		return err
	}
	switch {
	case repaired && migrated:
		err = c.saveAll(books, responses)
	case repaired:
		err = c.saveBooks(books)
	case migrated:
		err = c.saveResponses(responses)
	}
	if err != nil {
		return err
	}
	if repaired {
		c.log.Info("repaired stored books", zap.Int("books", len(books)))
	}
	if migrated {
		c.log.Info("migrated stored responses to the three-question layout", zap.Int("responses", len(responses)))
	}

	c.user, c.books, c.responses = user, books, responses
	c.log.Debug("club loaded",
		zap.String("user", string(user)),
		zap.Int("books", len(books)),
		zap.Int("responses", len(responses)))
	return nil
}

func (c *Club) loadUser() (User, error) {
	raw, ok, err := c.store.Get(KeyUser)
	if err != nil {
		return "", &StoreError{Op: "get", Key: KeyUser, Err: err}
	}
	if !ok || raw == "" {
		return "", nil
	}
	u, err := ParseUser(raw)
	if err != nil {
		c.log.Warn("ignoring stored user", zap.String("value", raw))
		return "", nil
	}
	return u, nil
}

// minMillisID is the smallest id treated as a Unix millisecond timestamp
// (September 2001). Smaller ids come from hand-made or seeded records.
const minMillisID = 1_000_000_000_000

// loadBooks decodes the shelf and repairs records that break the lifecycle
// rules. repaired reports whether anything changed and must be written back.
func (c *Club) loadBooks() (books []Book, repaired bool, err error) {
	raw, ok, err := c.store.Get(KeyBooks)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Key: KeyBooks, Err: err}
	}
	if !ok {
		if c.seed {
			return SeedBooks(), false, nil
		}
		return []Book{}, false, nil
	}

	books = []Book{}
	if err := json.Unmarshal([]byte(raw), &books); err != nil {
		return nil, false, &StoreError{Op: "decode", Key: KeyBooks, Err: err}
	}
	if books == nil {
		books = []Book{}
	}

	// Older records may carry only one of status/isCurrent or no addedAt, and
	// a hand-edited store may hold more than one current book. Keep the oldest
	// current one.
	current := -1
	for i := range books {
		b := &books[i]
		status, isCurrent := b.Status, b.IsCurrent
		switch b.Status {
		case StatusCurrent, StatusWaiting, StatusRead:
		default:
			if b.IsCurrent {
				b.Status = StatusCurrent
			} else {
				b.Status = StatusWaiting
			}
		}
		b.setStatus(b.Status)
		if b.Status != status || b.IsCurrent != isCurrent {
			repaired = true
		}
		if b.AddedAt.IsZero() && b.ID >= minMillisID {
			b.AddedAt = time.UnixMilli(b.ID).UTC()
			repaired = true
		}
		if b.Status != StatusCurrent {
			continue
		}
		if current < 0 || before(b, &books[current]) {
			current = i
		}
	}
	for i := range books {
		if books[i].Status == StatusCurrent && i != current {
			c.log.Warn("demoting extra current book", zap.Int64("id", books[i].ID))
			books[i].setStatus(StatusWaiting)
			repaired = true
		}
	}
	return books, repaired, nil
}

func (c *Club) loadResponses() ([]Response, bool, error) {
	raw, ok, err := c.store.Get(KeyResponses)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Key: KeyResponses, Err: err}
	}
	if !ok {
		return []Response{}, false, nil
	}

	var stored []storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, false, &StoreError{Op: "decode", Key: KeyResponses, Err: err}
	}

	responses := make([]Response, 0, len(stored))
	migrated := false
	seen := make(map[responseKey]bool, len(stored))
	for i := range stored {
		r, legacy, err := stored[i].normalize()
		if err != nil {
			return nil, false, &StoreError{Op: "decode", Key: KeyResponses, Err: err}
		}
		migrated = migrated || legacy
		k := responseKey{r.BookID, r.User}
		if seen[k] {
			c.log.Warn("dropping duplicate response", zap.Int64("book", r.BookID), zap.String("user", string(r.User)))
			migrated = true
			continue
		}
		seen[k] = true
		responses = append(responses, r)
	}
	return responses, migrated, nil
}

type responseKey struct {
	bookID int64
	user   User
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func encode(key string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &StoreError{Op: "encode", Key: key, Err: err}
	}
	return string(data), nil
}

func (c *Club) saveBooks(books []Book) error {
	data, err := encode(KeyBooks, books)
	if err != nil {
		return err
	}
	if err := c.store.Put(KeyBooks, data); err != nil {
		c.log.Error("persist failed", zap.String("key", KeyBooks), zap.Error(err))
		return &StoreError{Op: "put", Key: KeyBooks, Err: err}
	}
	return nil
}

func (c *Club) saveResponses(responses []Response) error {
	data, err := encode(KeyResponses, responses)
	if err != nil {
		return err
	}
	if err := c.store.Put(KeyResponses, data); err != nil {
		c.log.Error("persist failed", zap.String("key", KeyResponses), zap.Error(err))
		return &StoreError{Op: "put", Key: KeyResponses, Err: err}
	}
	return nil
}

func (c *Club) saveAll(books []Book, responses []Response) error {
	bookData, err := encode(KeyBooks, books)
	if err != nil {
		return err
	}
	respData, err := encode(KeyResponses, responses)
	if err != nil {
		return err
	}
	entries := map[string]string{KeyBooks: bookData, KeyResponses: respData}
	if err := c.store.PutBatch(entries); err != nil {
		c.log.Error("persist failed", zap.String("key", KeyBooks+"+"+KeyResponses), zap.Error(err))
		return &StoreError{Op: "put", Key: KeyBooks + "+" + KeyResponses, Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

// CurrentUser returns the selected identity; ok is false before one is picked.
func (c *Club) CurrentUser() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.user != ""
}

// SelectUser sets and persists the current identity.
func (c *Club) SelectUser(u User) error {
	if !u.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidUser, string(u))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Put(KeyUser, string(u)); err != nil {
		c.log.Error("persist failed", zap.String("key", KeyUser), zap.Error(err))
		return &StoreError{Op: "put", Key: KeyUser, Err: err}
	}
	c.user = u
	c.log.Info("user selected", zap.String("user", string(u)))
	return nil
}

// ClearUser forgets the selected identity.
func (c *Club) ClearUser() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(KeyUser); err != nil {
		return &StoreError{Op: "delete", Key: KeyUser, Err: err}
	}
	c.user = ""
	return nil
}

// RequireUser returns the selected identity or ErrNoUserSelected.
func (c *Club) RequireUser() (User, error) {
	u, ok := c.CurrentUser()
	if !ok {
		return "", ErrNoUserSelected
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// before orders books by addedAt, then id.
func before(a, b *Book) bool {
	if !a.AddedAt.Equal(b.AddedAt) {
		return a.AddedAt.Before(b.AddedAt)
	}
	return a.ID < b.ID
}

func (c *Club) cloneBooks() []Book {
	out := make([]Book, len(c.books))
	copy(out, c.books)
	return out
}

func (c *Club) cloneResponses() []Response {
	out := make([]Response, len(c.responses))
	copy(out, c.responses)
	return out
}

func indexOfBook(books []Book, id int64) int {
	for i := range books {
		if books[i].ID == id {
			return i
		}
	}
	return -1
}

func hasCurrent(books []Book) bool {
	for i := range books {
		if books[i].Status == StatusCurrent {
			return true
		}
	}
	return false
}

// promoteNext makes the oldest waiting book current and returns it, or nil
// when the waiting list is empty.
func promoteNext(books []Book) *Book {
	next := -1
	for i := range books {
		if books[i].Status != StatusWaiting {
			continue
		}
		if next < 0 || before(&books[i], &books[next]) {
			next = i
		}
	}
	if next < 0 {
		return nil
	}
	books[next].setStatus(StatusCurrent)
	promoted := books[next]
	return &promoted
}

// nextID returns a time-derived id strictly greater than every id in use.
func nextID(now time.Time, maxInUse int64) int64 {
	id := now.UnixMilli()
	if id <= maxInUse {
		id = maxInUse + 1
	}
	return id
}

// AddBook puts a new book on the shelf. It becomes the current book when
// there is none, otherwise it joins the waiting list.
func (c *Club) AddBook(d BookDraft) (Book, error) {
	if err := d.Validate(); err != nil {
		return Book{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var maxID int64
	for i := range c.books {
		maxID = max(maxID, c.books[i].ID)
	}
	now := c.now()
	b := Book{
		ID:         nextID(now, maxID),
		Title:      strings.TrimSpace(d.Title),
		Author:     strings.TrimSpace(d.Author),
		Genre:      strings.TrimSpace(d.Genre),
		CoverImage: strings.TrimSpace(d.CoverImage),
		ImageFile:  d.ImageFile,
		AddedAt:    now,
	}
	if hasCurrent(c.books) {
		b.setStatus(StatusWaiting)
	} else {
		b.setStatus(StatusCurrent)
	}

	next := append(c.cloneBooks(), b)
	if err := c.saveBooks(next); err != nil {
		return Book{}, err
	}
	c.books = next
	c.log.Info("book added",
		zap.Int64("id", b.ID),
		zap.String("title", b.Title),
		zap.String("status", string(b.Status)))
	return b, nil
}

// UpdateBook merges the set fields of u into book id. found is false, and
// nothing is written, when no such book exists. Status is never touched.
func (c *Club) UpdateBook(id int64, u BookUpdate) (found bool, err error) {
	if err := u.Validate(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOfBook(c.books, id)
	if i < 0 {
		c.log.Debug("update skipped, no such book", zap.Int64("id", id))
		return false, nil
	}
	if u.Empty() {
		return true, nil
	}

	next := c.cloneBooks()
	b := &next[i]
	if u.Title != nil {
		b.Title = strings.TrimSpace(*u.Title)
	}
	if u.Author != nil {
		b.Author = strings.TrimSpace(*u.Author)
	}
	if u.Genre != nil {
		b.Genre = strings.TrimSpace(*u.Genre)
	}
	if u.CoverImage != nil {
		b.CoverImage = strings.TrimSpace(*u.CoverImage)
	}
	if u.ImageFile != nil {
		b.ImageFile = *u.ImageFile
	}

	if err := c.saveBooks(next); err != nil {
		return true, err
	}
	c.books = next
	c.log.Info("book updated", zap.Int64("id", id))
	return true, nil
}

// DeleteBook removes a book together with its responses. Removing the current
// book promotes the oldest waiting one, as a finished meeting would.
func (c *Club) DeleteBook(id int64) (promoted *Book, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOfBook(c.books, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrBookNotFound, id)
	}
	wasCurrent := c.books[i].Status == StatusCurrent

	next := make([]Book, 0, len(c.books)-1)
	next = append(next, c.books[:i]...)
	next = append(next, c.books[i+1:]...)
	if wasCurrent {
		promoted = promoteNext(next)
	}

	responses := make([]Response, 0, len(c.responses))
	for _, r := range c.responses {
		if r.BookID != id {
			responses = append(responses, r)
		}
	}

	if err := c.saveAll(next, responses); err != nil {
		return nil, err
	}
	removed := len(c.responses) - len(responses)
	c.books, c.responses = next, responses

	fields := []zap.Field{zap.Int64("id", id), zap.Int("responsesRemoved", removed)}
	if promoted != nil {
		fields = append(fields, zap.Int64("promoted", promoted.ID))
	}
	c.log.Info("book deleted", fields...)
	return promoted, nil
}

// CompleteBookMeeting marks the current book read and starts the oldest book
// on the waiting list. It returns the newly current book, or nil when the
// waiting list was empty and the club is left without a current book.
func (c *Club) CompleteBookMeeting(id int64) (*Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOfBook(c.books, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrBookNotFound, id)
	}
	if c.books[i].Status != StatusCurrent {
		return nil, fmt.Errorf("%w: %q is %s", ErrBookNotCurrent, c.books[i].Title, c.books[i].Status)
	}

	next := c.cloneBooks()
	next[i].setStatus(StatusRead)
	promoted := promoteNext(next)

	if err := c.saveBooks(next); err != nil {
		return nil, err
	}
	c.books = next

	if promoted != nil {
		c.log.Info("meeting completed", zap.Int64("read", id), zap.Int64("current", promoted.ID))
	} else {
		c.log.Info("meeting completed, waiting list empty", zap.Int64("read", id))
	}
	return promoted, nil
}

// Books returns every book in insertion order.
func (c *Club) Books() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneBooks()
}

// Book looks up a book by id.
func (c *Club) Book(id int64) (Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOfBook(c.books, id); i >= 0 {
		return c.books[i], true
	}
	return Book{}, false
}

// CurrentBook returns the book being read, if any.
func (c *Club) CurrentBook() (Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.books {
		if b.Status == StatusCurrent {
			return b, true
		}
	}
	return Book{}, false
}

func (c *Club) withStatus(s BookStatus) []Book {
	var out []Book
	for _, b := range c.books {
		if b.Status == s {
			out = append(out, b)
		}
	}
	return out
}

// WaitingList returns the queued books, oldest first.
func (c *Club) WaitingList() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.withStatus(StatusWaiting)
	sort.SliceStable(out, func(i, j int) bool { return before(&out[i], &out[j]) })
	return out
}

// ReadBooks returns finished books, newest first.
func (c *Club) ReadBooks() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.withStatus(StatusRead)
	sort.SliceStable(out, func(i, j int) bool { return before(&out[j], &out[i]) })
	return out
}

// SearchBooks matches query against title, author and genre, ignoring case
// and accents.
func (c *Club) SearchBooks(query string) []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Book
	for i := range c.books {
		if c.books[i].matches(query) {
			out = append(out, c.books[i])
		}
	}
	return out
}

// FindMatchingBook returns a shelved book that looks like title by author.
func (c *Club) FindMatchingBook(title, author string) (Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.books {
		if SameBook(b.Title, b.Author, title, author) {
			return b, true
		}
	}
	return Book{}, false
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// AddResponse stores a member's questionnaire for a book. A second submission
// by the same member for the same book replaces the content of the first one
// but keeps its id and createdAt.
func (c *Club) AddResponse(d ResponseDraft) (Response, error) {
	if err := d.Validate(); err != nil {
		return Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if indexOfBook(c.books, d.BookID) < 0 {
		return Response{}, fmt.Errorf("%w: %d", ErrBookNotFound, d.BookID)
	}

	now := c.now()
	next := c.cloneResponses()
	existing := -1
	var maxID int64
	for i := range next {
		maxID = max(maxID, next[i].ID)
		if next[i].BookID == d.BookID && next[i].User == d.User {
			existing = i
		}
	}

	r := Response{
		BookID:              d.BookID,
		User:                d.User,
		Rating:              d.Rating,
		FavoriteCharacter:   strings.TrimSpace(d.FavoriteCharacter),
		FavoriteQuote:       strings.TrimSpace(d.FavoriteQuote),
		DiscussionQuestions: d.DiscussionQuestions,
		Thoughts:            strings.TrimSpace(d.Thoughts),
		UpdatedAt:           now,
	}
	for i := range r.DiscussionQuestions {
		r.DiscussionQuestions[i] = strings.TrimSpace(r.DiscussionQuestions[i])
	}

	if existing >= 0 {
		r.ID = next[existing].ID
		r.CreatedAt = next[existing].CreatedAt
		next[existing] = r
	} else {
		r.ID = nextID(now, maxID)
		r.CreatedAt = now
		next = append(next, r)
	}

	if err := c.saveResponses(next); err != nil {
		return Response{}, err
	}
	c.responses = next
	c.log.Info("response saved",
		zap.Int64("book", r.BookID),
		zap.String("user", string(r.User)),
		zap.Bool("updated", existing >= 0))
	return r, nil
}

// BookResponses returns each member's response to book id, if any.
func (c *Club) BookResponses(bookID int64) BookResponses {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out BookResponses
	for i := range c.responses {
		r := c.responses[i]
		if r.BookID != bookID {
			continue
		}
		switch r.User {
		case Manon:
			if out.Manon == nil {
				out.Manon = &r
			}
		case Jerina:
			if out.Jerina == nil {
				out.Jerina = &r
			}
		}
	}
	return out
}

// Responses returns every stored response.
func (c *Club) Responses() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneResponses()
}

// ---------------------------------------------------------------------------
// Info
// ---------------------------------------------------------------------------

// Info summarizes the shelf and, for a SQLite store, what the file holds.
type Info struct {
	SchemaVersion int
	Keys          []string

	Books     int
	Waiting   int
	Read      int
	Responses int

	// Current is nil when no book is being read.
	Current          *Book
	CurrentResponses BookResponses
}

// Info reports counts and store details.
func (c *Club) Info() (Info, error) {
	var info Info
	if s, ok := c.store.(*Store); ok {
		v, err := s.SchemaVersion()
		if err != nil {
			return Info{}, &StoreError{Op: "get", Key: "schema_version", Err: err}
		}
		keys, err := s.Keys()
		if err != nil {
			return Info{}, &StoreError{Op: "list", Key: "kv", Err: err}
		}
		info.SchemaVersion, info.Keys = v, keys
	}

	if cur, ok := c.CurrentBook(); ok {
		info.Current = &cur
		info.CurrentResponses = c.BookResponses(cur.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	info.Books = len(c.books)
	info.Responses = len(c.responses)
	for i := range c.books {
		switch c.books[i].Status {
		case StatusWaiting:
			info.Waiting++
		case StatusRead:
			info.Read++
		}
	}
	return info, nil
}
