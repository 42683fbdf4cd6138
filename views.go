package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"book-club/club"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const defaultWidth = 100

func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 40 {
		return w
	}
	return defaultWidth
}

type styles struct {
	heading lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	quote   lipgloss.Style
}

// newStyles picks colors only when w is a color-capable terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("162")),
		accent:  r.NewStyle().Foreground(lipgloss.Color("205")),
		muted:   r.NewStyle().Faint(true),
		quote:   r.NewStyle().Italic(true),
	}
}

func renderDashboard(w io.Writer, c *club.Club, width int) {
	st := newStyles(w)

	if u, ok := c.CurrentUser(); ok {
		fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("📚 Book club, hi %s!", u)))
	} else {
		fmt.Fprintln(w, st.heading.Render("📚 Book club"))
		fmt.Fprintln(w, st.muted.Render(`No user selected; run "bookclub user <name>".`))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, st.accent.Render("Currently reading"))
	if b, ok := c.CurrentBook(); ok {
		br := c.BookResponses(b.ID)
		fmt.Fprintf(w, "  %s by %s  (ID %d)\n", b.Title, b.Author, b.ID)
		if b.Genre != "" {
			fmt.Fprintf(w, "  Genre: %s\n", b.Genre)
		}
		fmt.Fprintf(w, "  Responses: %s\n", responseMarks(br))
		if br.Complete() {
			fmt.Fprintln(w, st.muted.Render("  Both thoughts are in, ready for the meeting."))
		}
	} else {
		fmt.Fprintln(w, st.muted.Render("  Nothing yet. Add a book to get started."))
	}

	fmt.Fprintln(w)
	waiting := c.WaitingList()
	fmt.Fprintln(w, st.accent.Render(fmt.Sprintf("Waiting list (%d)", len(waiting))))
	if len(waiting) == 0 {
		fmt.Fprintln(w, st.muted.Render("  Empty."))
	} else {
		renderBookTable(w, waiting, width)
	}

	fmt.Fprintln(w)
	read := c.ReadBooks()
	fmt.Fprintln(w, st.accent.Render(fmt.Sprintf("Already read (%d)", len(read))))
	if len(read) == 0 {
		fmt.Fprintln(w, st.muted.Render("  None yet."))
	} else {
		renderBookTable(w, read, width)
	}
}

func responseMarks(br club.BookResponses) string {
	parts := make([]string, 0, len(club.Users))
	for _, u := range club.Users {
		mark := "·"
		if br.For(u) != nil {
			mark = "✓"
		}
		parts = append(parts, fmt.Sprintf("%s %s", u, mark))
	}
	return strings.Join(parts, "  ")
}

// renderBookTable prints one line per book, shrinking title and author
// columns to fit width.
func renderBookTable(w io.Writer, books []club.Book, width int) {
	const fixed = 2 + 15 + 1 + 10 + 1 + 16 + 1 + 10
	titleW := max((width-fixed)*3/5, 12)
	authorW := max(width-fixed-titleW, 10)

	fmt.Fprintf(w, "  %-15s %-*s %-*s %-16s %s\n", "ID", titleW, "Title", authorW, "Author", "Genre", "Added")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", min(width-2, 15+titleW+authorW+16+10+4)))
	for _, b := range books {
		fmt.Fprintf(w, "  %-15d %-*s %-*s %-16s %s\n",
			b.ID,
			titleW, truncateString(b.Title, titleW),
			authorW, truncateString(b.Author, authorW),
			truncateString(b.Genre, 16),
			b.AddedAt.Local().Format("2006-01-02"))
	}
}

func renderBookDetail(w io.Writer, b club.Book, br club.BookResponses, viewer club.User) {
	st := newStyles(w)

	fmt.Fprintln(w, st.heading.Render(b.Title))
	fmt.Fprintf(w, "by %s\n", b.Author)
	if b.Genre != "" {
		fmt.Fprintf(w, "Genre:  %s\n", b.Genre)
	}
	fmt.Fprintf(w, "Status: %s\n", statusLabel(b.Status))
	fmt.Fprintf(w, "Added:  %s\n", b.AddedAt.Local().Format("2 January 2006"))
	if src := b.CoverSource(); src != "" {
		fmt.Fprintf(w, "Cover:  %s\n", describeCover(src))
	}

	for _, u := range club.Users {
		fmt.Fprintln(w)
		heading := fmt.Sprintf("%s's thoughts", u)
		if u == viewer {
			heading = "Your thoughts"
		}
		fmt.Fprintln(w, st.accent.Render(heading))

		r := br.For(u)
		if r == nil {
			fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("  %s hasn't shared their thoughts yet 🌷", u)))
			continue
		}
		fmt.Fprintf(w, "  Rating:              %s (%d/5)\n", stars(r.Rating), r.Rating)
		fmt.Fprintf(w, "  Favorite character:  %s\n", r.FavoriteCharacter)
		fmt.Fprintf(w, "  Favorite quote:      %s\n", st.quote.Render(`"`+r.FavoriteQuote+`"`))
		for i, q := range r.Questions() {
			fmt.Fprintf(w, "  Discussion %d:        %s\n", i+1, q)
		}
		fmt.Fprintf(w, "  Thoughts:\n")
		for _, line := range strings.Split(r.Thoughts, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func statusLabel(s club.BookStatus) string {
	switch s {
	case club.StatusCurrent:
		return "currently reading"
	case club.StatusWaiting:
		return "on the waiting list"
	case club.StatusRead:
		return "read"
	}
	return string(s)
}

func stars(rating int) string {
	rating = min(max(rating, 0), 5)
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

func describeCover(src string) string {
	if strings.HasPrefix(src, "data:") {
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(src, "data:"), ";")
		return fmt.Sprintf("embedded %s (%d KB)", mediaType, len(src)*3/4/1024)
	}
	return src
}

func truncateString(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string([]rune(s)[:maxLength])
	}
	return string([]rune(s)[:maxLength-3]) + "..."
}
