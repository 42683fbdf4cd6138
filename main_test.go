package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"book-club/club"
	"book-club/config"

	"github.com/google/shlex"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testApp wires an app to a throwaway database and an absent config file.
func testApp(t *testing.T, input string) (*app, *bytes.Buffer, []string) {
	t.Helper()
	t.Setenv("BOOKCLUB_DB", "")
	t.Setenv("BOOKCLUB_LOG_LEVEL", "")
	t.Setenv("BOOKCLUB_NO_SEED", "")

	dir := t.TempDir()
	out := &bytes.Buffer{}
	a := newApp(strings.NewReader(input), out)
	a.log = zap.NewNop()
	t.Cleanup(a.close)

	global := []string{
		"--db", filepath.Join(dir, "club.db"),
		"--config", filepath.Join(dir, "bookclub.yaml"),
	}
	return a, out, global
}

func run(t *testing.T, a *app, out *bytes.Buffer, global []string, args ...string) (string, error) {
	t.Helper()
	out.Reset()
	err := execute(a, append(append([]string{}, global...), args...))
	return out.String(), err
}

func TestCLI_UserSelection(t *testing.T) {
	a, out, g := testApp(t, "")

	got, err := run(t, a, out, g, "user")
	require.NoError(t, err)
	require.Contains(t, got, "No user selected")

	got, err = run(t, a, out, g, "user", "jerina")
	require.NoError(t, err)
	require.Contains(t, got, "Hi Jerina!")

	got, err = run(t, a, out, g, "user")
	require.NoError(t, err)
	require.Contains(t, got, "Current user: Jerina")

	_, err = run(t, a, out, g, "user", "bob")
	require.ErrorIs(t, err, club.ErrInvalidUser)

	_, err = run(t, a, out, g, "user", "--clear")
	require.NoError(t, err)
	_, ok := a.club.CurrentUser()
	require.False(t, ok)
}

func TestCLI_RespondRequiresUser(t *testing.T) {
	a, out, g := testApp(t, "")

	_, err := run(t, a, out, g, "add", "--title", "Dune", "--author", "Frank Herbert")
	require.NoError(t, err)

	_, err = run(t, a, out, g, "respond", "--character", "Paul", "--quote", "Fear", "-q", "Why?", "--thoughts", "Great")
	require.ErrorIs(t, err, club.ErrNoUserSelected)
	require.Contains(t, err.Error(), "bookclub user <Manon|Jerina>")
	require.Empty(t, a.club.Responses())
}

func TestCLI_AddListComplete(t *testing.T) {
	a, out, g := testApp(t, "")

	got, err := run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert", "-g", "Sci-Fi")
	require.NoError(t, err)
	require.Contains(t, got, "'Dune' is now the current book")

	got, err = run(t, a, out, g, "add", "-t", "Emma", "-a", "Jane Austen")
	require.NoError(t, err)
	require.Contains(t, got, "joined the waiting list (position 1)")

	got, err = run(t, a, out, g, "list")
	require.NoError(t, err)
	require.Contains(t, got, "Currently reading")
	require.Contains(t, got, "Dune by Frank Herbert")
	require.Contains(t, got, "Waiting list (1)")
	require.Contains(t, got, "Emma")
	require.Contains(t, got, "Already read (3)")

	got, err = run(t, a, out, g, "complete")
	require.NoError(t, err)
	require.Contains(t, got, "Finished 'Dune'")
	require.Contains(t, got, "Note: Manon never shared their thoughts on it.")
	require.Contains(t, got, "Now reading 'Emma' by Jane Austen.")

	cur, ok := a.club.CurrentBook()
	require.True(t, ok)
	require.Equal(t, "Emma", cur.Title)
	require.Len(t, a.club.ReadBooks(), 4)

	got, err = run(t, a, out, g, "complete")
	require.NoError(t, err)
	require.Contains(t, got, "The waiting list is empty")

	_, err = run(t, a, out, g, "complete")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no book is being read")
}

func TestCLI_CompleteWaitingBookFails(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)
	_, err = run(t, a, out, g, "add", "-t", "Emma", "-a", "Jane Austen")
	require.NoError(t, err)

	waiting := a.club.WaitingList()
	require.Len(t, waiting, 1)
	_, err = run(t, a, out, g, "complete", itoa(waiting[0].ID))
	require.ErrorIs(t, err, club.ErrBookNotCurrent)
}

func TestCLI_RespondAndShow(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "user", "Manon")
	require.NoError(t, err)
	_, err = run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)

	got, err := run(t, a, out, g, "respond", "-r", "4",
		"--character", "Paul",
		"--quote", "Fear is the mind-killer.",
		"-q", "Would you drink the Water of Life?",
		"-q", "Who is the real villain?",
		"--thoughts", "Dense but rewarding.")
	require.NoError(t, err)
	require.Contains(t, got, "are saved")

	got, err = run(t, a, out, g, "respond", "-r", "5")
	require.NoError(t, err)
	require.Contains(t, got, "are updated")

	cur, _ := a.club.CurrentBook()
	r := a.club.BookResponses(cur.ID).For(club.Manon)
	require.NotNil(t, r)
	require.Equal(t, 5, r.Rating)
	require.Equal(t, "Paul", r.FavoriteCharacter)
	require.Equal(t, []string{"Would you drink the Water of Life?", "Who is the real villain?"}, r.Questions())

	got, err = run(t, a, out, g, "show")
	require.NoError(t, err)
	require.Contains(t, got, "Your thoughts")
	require.Contains(t, got, "★★★★★ (5/5)")
	require.Contains(t, got, "Discussion 2:")
	require.Contains(t, got, "Jerina hasn't shared their thoughts yet")
}

func TestCLI_RespondRejectsInvalid(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "user", "Jerina")
	require.NoError(t, err)
	_, err = run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)

	_, err = run(t, a, out, g, "respond", "-r", "9", "--character", "Paul", "--quote", "q", "-q", "x", "--thoughts", "t")
	require.ErrorIs(t, err, club.ErrInvalidInput)

	_, err = run(t, a, out, g, "respond", "--character", "Paul", "--quote", "q", "-q", "1", "-q", "2", "-q", "3", "-q", "4", "--thoughts", "t")
	require.Error(t, err)
	require.Empty(t, a.club.Responses())
}

func TestCLI_EditAndDelete(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)
	_, err = run(t, a, out, g, "add", "-t", "Emma", "-a", "Jane Austen")
	require.NoError(t, err)
	dune, _ := a.club.CurrentBook()

	_, err = run(t, a, out, g, "edit", "42", "--title", "Nope")
	require.ErrorIs(t, err, club.ErrBookNotFound)

	_, err = run(t, a, out, g, "edit", itoa(dune.ID))
	require.Error(t, err)

	got, err := run(t, a, out, g, "edit", itoa(dune.ID), "--genre", "Sci-Fi", "--cover", "https://example.com/dune.jpg")
	require.NoError(t, err)
	require.Contains(t, got, "Updated 'Dune'")
	b, _ := a.club.Book(dune.ID)
	require.Equal(t, "Sci-Fi", b.Genre)
	require.Equal(t, "https://example.com/dune.jpg", b.CoverImage)

	_, err = run(t, a, out, g, "edit", itoa(dune.ID), "--cover", "ftp://nope")
	require.ErrorIs(t, err, club.ErrInvalidInput)

	got, err = run(t, a, out, g, "delete", "--yes", itoa(dune.ID))
	require.NoError(t, err)
	require.Contains(t, got, "Deleted 'Dune'.")
	require.Contains(t, got, "Now reading 'Emma'")
	_, ok := a.club.Book(dune.ID)
	require.False(t, ok)
}

func TestCLI_Search(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "add", "-t", "Les Misérables", "-a", "Victor Hugo", "-g", "Classic")
	require.NoError(t, err)

	got, err := run(t, a, out, g, "search", "miserables")
	require.NoError(t, err)
	require.Contains(t, got, "Found 1 book(s)")
	require.Contains(t, got, "Victor Hugo")

	got, err = run(t, a, out, g, "search", "zzz")
	require.NoError(t, err)
	require.Contains(t, got, "No books found matching 'zzz'")
}

func TestCLI_AddWithImage(t *testing.T) {
	a, out, g := testApp(t, "")
	path := writePNG(t)

	_, err := run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert", "--image", path)
	require.NoError(t, err)
	cur, _ := a.club.CurrentBook()
	require.True(t, strings.HasPrefix(cur.ImageFile, "data:image/png;base64,"))

	got, err := run(t, a, out, g, "show", itoa(cur.ID))
	require.NoError(t, err)
	require.Contains(t, got, "embedded image/png")
}

func TestCLI_PersistsAcrossRuns(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "user", "Manon")
	require.NoError(t, err)
	_, err = run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)
	a.close()

	b := newApp(strings.NewReader(""), out)
	b.log = zap.NewNop()
	t.Cleanup(b.close)
	got, err := run(t, b, out, g)
	require.NoError(t, err)
	require.Contains(t, got, "hi Manon")
	require.Contains(t, got, "Dune by Frank Herbert")
}

func TestShell_RunsLines(t *testing.T) {
	input := strings.Join([]string{
		"# comment lines are skipped",
		"user Manon",
		`add --title "The Name of the Wind" --author 'Patrick Rothfuss'`,
		`add --title "Unclosed`,
		"edit 1",
		"shell",
		`respond --character Kvothe --quote "Words are pale shadows" -q "Is Kvothe reliable?" --thoughts "Lovely prose"`,
		"bookclub show",
		"exit",
		"user Jerina",
	}, "\n")
	a, out, g := testApp(t, input)

	got, err := run(t, a, out, g, "shell")
	require.NoError(t, err)
	require.Contains(t, got, "Hi Manon!")
	require.Contains(t, got, "'The Name of the Wind' is now the current book")
	require.Contains(t, got, "Error: ")
	require.Contains(t, got, "Already in the shell.")
	require.Contains(t, got, "Your thoughts")
	require.Contains(t, got, "Kvothe")

	u, _ := a.club.CurrentUser()
	require.Equal(t, club.Manon, u, "lines after exit must not run")
}

func TestCLI_Info(t *testing.T) {
	a, out, g := testApp(t, "")
	_, err := run(t, a, out, g, "add", "-t", "Dune", "-a", "Frank Herbert")
	require.NoError(t, err)

	got, err := run(t, a, out, g, "info")
	require.NoError(t, err)
	require.Contains(t, got, "Schema version: 1")
	require.Contains(t, got, "Records:        bookClubBooks\n")
	require.Contains(t, got, "Books:          4 (0 waiting, 3 read)")
	require.Contains(t, got, "Current book:   Dune (Manon ·  Jerina ·)")
	require.NotContains(t, got, "ready to discuss")

	for _, u := range []string{"Manon", "Jerina"} {
		_, err = run(t, a, out, g, "user", u)
		require.NoError(t, err)
		_, err = run(t, a, out, g, "respond", "--character", "Paul", "--quote", "Fear", "-q", "Why?", "--thoughts", "Great")
		require.NoError(t, err)
	}
	got, err = run(t, a, out, g, "info")
	require.NoError(t, err)
	require.Contains(t, got, "Responses:      2")
	require.Contains(t, got, "ready to discuss")

	got, err = run(t, a, out, g, "list")
	require.NoError(t, err)
	require.Contains(t, got, "ready for the meeting")
}

func TestCLI_ConfigInit(t *testing.T) {
	a, out, g := testApp(t, "")
	cfgPath := g[3]

	got, err := run(t, a, out, g, "config", "init")
	require.NoError(t, err)
	require.Contains(t, got, "Wrote "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, g[1], cfg.DatabasePath)
	require.Equal(t, int64(5<<20), cfg.Images.MaxBytes)

	_, err = run(t, a, out, g, "config", "init")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	_, err = run(t, a, out, g, "config", "init", "--force")
	require.NoError(t, err)
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"list", []string{"list"}},
		{"  add  -t Dune  ", []string{"add", "-t", "Dune"}},
		{`add -t "The Hobbit" -a 'J. R. R. Tolkien'`, []string{"add", "-t", "The Hobbit", "-a", "J. R. R. Tolkien"}},
		{`respond --quote "He said \"no\""`, []string{"respond", "--quote", `He said "no"`}},
		{`--thoughts ''`, []string{"--thoughts", ""}},
		{`a\ b`, []string{"a b"}},
		{`'it\s'`, []string{`it\s`}},
	}
	for _, tt := range tests {
		got, err := shlex.Split(tt.line)
		require.NoError(t, err, tt.line)
		require.Equal(t, tt.want, got, tt.line)
	}

	_, err := shlex.Split(`add -t "Dune`)
	require.Error(t, err)
}

func TestLoadImage(t *testing.T) {
	png := writePNG(t)
	data, err := loadImage(png, 1<<20)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(data, "data:image/png;base64,"))

	_, err = loadImage(png, 8)
	require.Error(t, err)
	require.Contains(t, err.Error(), "limited to")

	txt := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(txt, []byte("just some text, not a picture"), 0644))
	_, err = loadImage(txt, 1<<20)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not an image")

	_, err = loadImage(filepath.Join(t.TempDir(), "missing.png"), 1<<20)
	require.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	require.Equal(t, "Dune", truncateString("Dune", 10))
	require.Equal(t, "Les Mis...", truncateString("Les Misérables", 10))
	require.Equal(t, "M...", truncateString("Misérables", 4))
	require.Equal(t, "Mis", truncateString("Misérables", 3))
}

func writePNG(t *testing.T) string {
	t.Helper()
	header := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	path := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(path, header, 0644))
	return path
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
