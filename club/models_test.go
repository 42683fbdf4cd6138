package club

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func validDraft(bookID int64, u User) ResponseDraft {
	return ResponseDraft{
		BookID:              bookID,
		User:                u,
		Rating:              4,
		FavoriteCharacter:   "Nora",
		FavoriteQuote:       "Between life and death there is a library.",
		DiscussionQuestions: [QuestionSlots]string{"Which life would you pick?"},
		Thoughts:            "Lovely.",
	}
}

func TestParseUser(t *testing.T) {
	tests := []struct {
		in      string
		want    User
		wantErr bool
	}{
		{in: "Manon", want: Manon},
		{in: "jerina", want: Jerina},
		{in: "  MANON ", want: Manon},
		{in: "Bob", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUser(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidUser)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResponseDraftValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ResponseDraft)
		fields []string
	}{
		{name: "valid", mutate: func(*ResponseDraft) {}},
		{
			name:   "only the first question",
			mutate: func(d *ResponseDraft) { d.DiscussionQuestions = [QuestionSlots]string{"Why the library?", "", " "} },
		},
		{
			name:   "all three questions",
			mutate: func(d *ResponseDraft) { d.DiscussionQuestions = [QuestionSlots]string{"one", "two", "three"} },
		},
		{
			name:   "later questions without the first",
			mutate: func(d *ResponseDraft) { d.DiscussionQuestions = [QuestionSlots]string{"", "two", "three"} },
			fields: []string{"discussionQuestions[0]"},
		},
		{name: "rating too low", mutate: func(d *ResponseDraft) { d.Rating = 0 }, fields: []string{"rating"}},
		{name: "rating too high", mutate: func(d *ResponseDraft) { d.Rating = 6 }, fields: []string{"rating"}},
		{name: "unknown user", mutate: func(d *ResponseDraft) { d.User = "Bob" }, fields: []string{"user"}},
		{
			name:   "character too long",
			mutate: func(d *ResponseDraft) { d.FavoriteCharacter = strings.Repeat("x", MaxCharacterLen+1) },
			fields: []string{"favoriteCharacter"},
		},
		{
			name:   "quote at the limit",
			mutate: func(d *ResponseDraft) { d.FavoriteQuote = strings.Repeat("é", MaxQuoteLen) },
		},
		{
			name:   "thoughts too long",
			mutate: func(d *ResponseDraft) { d.Thoughts = strings.Repeat("x", MaxThoughtsLen+1) },
			fields: []string{"thoughts"},
		},
		{
			name:   "blank first question",
			mutate: func(d *ResponseDraft) { d.DiscussionQuestions = [QuestionSlots]string{" ", "second"} },
			fields: []string{"discussionQuestions[0]"},
		},
		{
			name:   "third question too long",
			mutate: func(d *ResponseDraft) { d.DiscussionQuestions[2] = strings.Repeat("q", MaxQuestionLen+1) },
			fields: []string{"discussionQuestions[2]"},
		},
		{
			name: "everything missing",
			mutate: func(d *ResponseDraft) {
				*d = ResponseDraft{User: Manon, Rating: 3}
			},
			fields: []string{"favoriteCharacter", "favoriteQuote", "thoughts", "discussionQuestions[0]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft(1, Manon)
			tt.mutate(&d)
			err := d.Validate()
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidInput)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			var got []string
			for _, f := range ve.Fields {
				got = append(got, f.Field)
			}
			require.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestBookDraftValidate(t *testing.T) {
	ok := BookDraft{Title: "Dune", Author: "Frank Herbert", CoverImage: "https://example.com/dune.jpg"}
	require.NoError(t, ok.Validate())

	withImage := BookDraft{Title: "Dune", Author: "Frank Herbert", ImageFile: "data:image/png;base64,iVBORw0KGgo="}
	require.NoError(t, withImage.Validate())

	bad := BookDraft{Title: " ", Author: "", CoverImage: "ftp://example.com/x", ImageFile: "data:text/plain;base64,aGk="}
	err := bad.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Len(t, err.(*ValidationError).Fields, 4)
}

func TestCoverSourcePrefersImageFile(t *testing.T) {
	b := Book{CoverImage: "https://example.com/a.jpg"}
	require.Equal(t, "https://example.com/a.jpg", b.CoverSource())

	b.ImageFile = "data:image/png;base64,AAAA"
	require.Equal(t, "data:image/png;base64,AAAA", b.CoverSource())
}

func TestStoredResponseNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     [QuestionSlots]string
		migrated bool
	}{
		{
			name: "current layout",
			raw:  `{"id":1,"bookId":5,"user":"Manon","rating":3,"discussionQuestions":["a","b","c"]}`,
			want: [QuestionSlots]string{"a", "b", "c"},
		},
		{
			name:     "legacy single question",
			raw:      `{"id":1,"bookId":5,"user":"Manon","rating":3,"discussionQuestion":"why?"}`,
			want:     [QuestionSlots]string{"why?", "", ""},
			migrated: true,
		},
		{
			name:     "short list is padded",
			raw:      `{"id":1,"bookId":5,"user":"Manon","rating":3,"discussionQuestions":["only"]}`,
			want:     [QuestionSlots]string{"only", "", ""},
			migrated: true,
		},
		{
			name:     "no questions at all",
			raw:      `{"id":1,"bookId":5,"user":"Manon","rating":3}`,
			migrated: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s storedResponse
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			r, migrated, err := s.normalize()
			require.NoError(t, err)
			require.Equal(t, tt.want, r.DiscussionQuestions)
			require.Equal(t, tt.migrated, migrated)
			require.Equal(t, int64(5), r.BookID)
			require.Equal(t, Manon, r.User)
		})
	}
}

func TestBookResponsesFor(t *testing.T) {
	m := &Response{User: Manon}
	br := BookResponses{Manon: m}
	require.Same(t, m, br.For(Manon))
	require.Nil(t, br.For(Jerina))
	require.Nil(t, br.For("Bob"))
	require.False(t, br.Complete())
}
