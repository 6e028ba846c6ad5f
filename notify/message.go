package notify

import (
	"strings"
	"text/template"

	"posty/domain"
)

// Subject of every "post liked" email.
const Subject = "Post Liked"

var postLikedTmpl = template.Must(template.New("post_liked").Parse(
	`Hello {{.Owner}},

{{.Liker}} liked your post #{{.PostID}}.

Thank you for using Posty.
`))

// compose renders the "post liked" email for the owner of the liked post.
func compose(owner *domain.User, n domain.LikeNotification) (Message, error) {
	var body strings.Builder
	err := postLikedTmpl.Execute(&body, struct {
		Owner  string
		Liker  string
		PostID int
	}{
		Owner:  owner.Name,
		Liker:  n.LikerName,
		PostID: n.PostID,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      owner.Email,
		Subject: Subject,
		Body:    body.String(),
	}, nil
}
