package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"book-club/club"

	"github.com/spf13/cobra"
)

func parseBookID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid book ID: %s", s)
	}
	return id, nil
}

// bookArg resolves an optional book ID argument, defaulting to the current
// book.
func bookArg(a *app, args []string) (club.Book, error) {
	if len(args) == 0 {
		b, ok := a.club.CurrentBook()
		if !ok {
			return club.Book{}, errors.New("no book is being read right now; pass a book ID")
		}
		return b, nil
	}
	id, err := parseBookID(args[0])
	if err != nil {
		return club.Book{}, err
	}
	b, ok := a.club.Book(id)
	if !ok {
		return club.Book{}, fmt.Errorf("%w: %d", club.ErrBookNotFound, id)
	}
	return b, nil
}

// requireUser is the guard for commands that act on behalf of a reader.
func requireUser(a *app) (club.User, error) {
	u, err := a.club.RequireUser()
	if errors.Is(err, club.ErrNoUserSelected) {
		return "", fmt.Errorf("%w: run \"bookclub user <%s>\" first", err, userChoices())
	}
	return u, err
}

func userChoices() string {
	names := make([]string, 0, len(club.Users))
	for _, u := range club.Users {
		names = append(names, string(u))
	}
	return strings.Join(names, "|")
}

func newUserCmd(a *app) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "user [" + userChoices() + "]",
		Short: "Show or pick who is using the tracker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				if err := a.club.ClearUser(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "User cleared.")
				return nil
			}
			if len(args) == 0 {
				if u, ok := a.club.CurrentUser(); ok {
					fmt.Fprintf(a.out, "Current user: %s\n", u)
				} else {
					fmt.Fprintf(a.out, "No user selected. Pick one of: %s\n", strings.ReplaceAll(userChoices(), "|", ", "))
				}
				return nil
			}
			u, err := club.ParseUser(args[0])
			if err != nil {
				return err
			}
			if err := a.club.SelectUser(u); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Hi %s!\n", u)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "forget the selected user")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"home", "dashboard"},
		Short:   "Show the current book, the waiting list and past reads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(a)
		},
	}
}

func runDashboard(a *app) error {
	renderDashboard(a.out, a.club, termWidth())
	return nil
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [book-id]",
		Short: "Show a book and both readers' responses",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bookArg(a, args)
			if err != nil {
				return err
			}
			u, _ := a.club.CurrentUser()
			renderBookDetail(a.out, b, a.club.BookResponses(b.ID), u)
			return nil
		},
	}
}

type bookFlags struct {
	title, author, genre, cover, image string
}

func (f *bookFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "book title")
	cmd.Flags().StringVarP(&f.author, "author", "a", "", "author")
	cmd.Flags().StringVarP(&f.genre, "genre", "g", "", "genre")
	cmd.Flags().StringVar(&f.cover, "cover", "", "cover image URL")
	cmd.Flags().StringVar(&f.image, "image", "", "path to a local cover image to embed")
}

func newAddCmd(a *app) *cobra.Command {
	var f bookFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book; it starts right away if nothing is being read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := club.BookDraft{Title: f.title, Author: f.author, Genre: f.genre, CoverImage: f.cover}
			if f.image != "" {
				data, err := loadImage(f.image, a.cfg.Images.MaxBytes)
				if err != nil {
					return err
				}
				d.ImageFile = data
			}
			b, err := a.club.AddBook(d)
			if err != nil {
				return err
			}
			if b.Status == club.StatusCurrent {
				fmt.Fprintf(a.out, "Added book ID %d. '%s' is now the current book.\n", b.ID, b.Title)
			} else {
				fmt.Fprintf(a.out, "Added book ID %d. '%s' joined the waiting list (position %d).\n",
					b.ID, b.Title, len(a.club.WaitingList()))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var (
		f          bookFlags
		clearCover bool
	)
	cmd := &cobra.Command{
		Use:   "edit <book-id>",
		Short: "Change a book's title, author, genre or cover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}

			var u club.BookUpdate
			flags := cmd.Flags()
			if flags.Changed("title") {
				u.Title = &f.title
			}
			if flags.Changed("author") {
				u.Author = &f.author
			}
			if flags.Changed("genre") {
				u.Genre = &f.genre
			}
			if flags.Changed("cover") {
				u.CoverImage = &f.cover
			}
			if flags.Changed("image") {
				data, err := loadImage(f.image, a.cfg.Images.MaxBytes)
				if err != nil {
					return err
				}
				u.ImageFile = &data
			}
			if clearCover {
				empty := ""
				u.CoverImage, u.ImageFile = &empty, &empty
			}
			if u.Empty() {
				return errors.New("nothing to change; pass --title, --author, --genre, --cover, --image or --clear-cover")
			}

			found, err := a.club.UpdateBook(id, u)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %d", club.ErrBookNotFound, id)
			}
			b, _ := a.club.Book(id)
			fmt.Fprintf(a.out, "Updated '%s' by %s.\n", b.Title, b.Author)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&clearCover, "clear-cover", false, "remove both the cover URL and the embedded image")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Remove a book and its responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bookArg(a, args)
			if err != nil {
				return err
			}
			if !yes && a.interactive() && !confirm(a, fmt.Sprintf("Delete '%s' and its responses?", b.Title)) {
				fmt.Fprintln(a.out, "Kept it.")
				return nil
			}
			promoted, err := a.club.DeleteBook(b.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted '%s'.\n", b.Title)
			if promoted != nil {
				fmt.Fprintf(a.out, "Now reading '%s' by %s.\n", promoted.Title, promoted.Author)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(a *app, question string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	sc := a.lines()
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}

func newCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [book-id]",
		Short: "Mark the current book as discussed and start the next one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bookArg(a, args)
			if err != nil {
				return err
			}
			br := a.club.BookResponses(b.ID)
			next, err := a.club.CompleteBookMeeting(b.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Finished '%s'. 🎉\n", b.Title)
			for _, u := range club.Users {
				if br.For(u) == nil {
					fmt.Fprintf(a.out, "Note: %s never shared their thoughts on it.\n", u)
				}
			}
			if next != nil {
				fmt.Fprintf(a.out, "Now reading '%s' by %s.\n", next.Title, next.Author)
			} else {
				fmt.Fprintln(a.out, "The waiting list is empty; add a book to pick the next read.")
			}
			return nil
		},
	}
}

func newRespondCmd(a *app) *cobra.Command {
	var (
		rating    int
		character string
		quote     string
		questions []string
		thoughts  string
	)
	cmd := &cobra.Command{
		Use:   "respond [book-id]",
		Short: "Share your rating and thoughts on a book (the current one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := requireUser(a)
			if err != nil {
				return err
			}
			b, err := bookArg(a, args)
			if err != nil {
				return err
			}
			if len(questions) > club.QuestionSlots {
				return fmt.Errorf("at most %d discussion questions", club.QuestionSlots)
			}

			d := club.ResponseDraft{BookID: b.ID, User: user, Rating: 5}
			// Resubmitting edits the previous answers: unchanged flags keep them.
			prev := a.club.BookResponses(b.ID).For(user)
			if prev != nil {
				d.Rating = prev.Rating
				d.FavoriteCharacter = prev.FavoriteCharacter
				d.FavoriteQuote = prev.FavoriteQuote
				d.DiscussionQuestions = prev.DiscussionQuestions
				d.Thoughts = prev.Thoughts
			}
			flags := cmd.Flags()
			if flags.Changed("rating") {
				d.Rating = rating
			}
			if flags.Changed("character") {
				d.FavoriteCharacter = character
			}
			if flags.Changed("quote") {
				d.FavoriteQuote = quote
			}
			if flags.Changed("question") {
				d.DiscussionQuestions = [club.QuestionSlots]string{}
				copy(d.DiscussionQuestions[:], questions)
			}
			if flags.Changed("thoughts") {
				d.Thoughts = thoughts
			}

			if _, err := a.club.AddResponse(d); err != nil {
				return err
			}
			if prev == nil {
				fmt.Fprintf(a.out, "Thanks %s, your thoughts on '%s' are saved.\n", user, b.Title)
			} else {
				fmt.Fprintf(a.out, "Thanks %s, your thoughts on '%s' are updated.\n", user, b.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&rating, "rating", "r", 5, "rating from 1 to 5")
	cmd.Flags().StringVar(&character, "character", "", fmt.Sprintf("favorite character (max %d chars)", club.MaxCharacterLen))
	cmd.Flags().StringVar(&quote, "quote", "", fmt.Sprintf("favorite quote (max %d chars)", club.MaxQuoteLen))
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, fmt.Sprintf("discussion question, repeat up to %d times (the first is required)", club.QuestionSlots))
	cmd.Flags().StringVar(&thoughts, "thoughts", "", fmt.Sprintf("your thoughts (max %d chars)", club.MaxThoughtsLen))
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find books by title, author or genre",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			books := a.club.SearchBooks(query)
			if len(books) == 0 {
				fmt.Fprintf(a.out, "No books found matching '%s'.\n", query)
				return nil
			}
			fmt.Fprintf(a.out, "Found %d book(s) matching '%s':\n", len(books), query)
			renderBookTable(a.out, books, termWidth())
			return nil
		},
	}
}
