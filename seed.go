package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"posty/crud"
	"posty/domain"
)

const (
	seedUsers    = 2
	seedPosts    = 10
	seedLikes    = 20
	seedPassword = "password"
)

var seedTexts = []string{
	"Just setting up my posty.",
	"Coffee first, code second.",
	"Does anyone else name their variables after their pets?",
	"Shipped it on a Friday. Wish me luck.",
	"The best error message is the one that never shows up.",
}

// Seed fills the database with a few users, posts and likes for local development.
// Likes go straight into the table, so seeding never notifies anyone.
func Seed(ctx context.Context, db *DB, services *crud.Services, log *logrus.Logger) error {
	users := make([]domain.User, 0, seedUsers)
	for i := 1; i <= seedUsers; i++ {
		u := domain.User{
			Name:     fmt.Sprintf("Seed User %d", i),
			Email:    fmt.Sprintf("seed%d@posty.test", i),
			Password: seedPassword,
		}
		if err := services.User.Create(ctx, &u); err != nil {
			return errors.Wrapf(err, "seed user %s", u.Email)
		}
		users = append(users, u)
	}

	posts := make([]domain.Post, 0, seedPosts)
	for i := 0; i < seedPosts; i++ {
		p := domain.Post{
			UserID: users[rand.Intn(len(users))].ID,
			Text:   seedTexts[i%len(seedTexts)],
		}
		if err := services.Post.Create(ctx, &p); err != nil {
			return errors.Wrap(err, "seed post")
		}
		posts = append(posts, p)
	}

	// Random pairs repeat; the unique index drops the duplicates.
	for i := 0; i < seedLikes; i++ {
		like := domain.Like{
			UserID: users[rand.Intn(len(users))].ID,
			PostID: posts[rand.Intn(len(posts))].ID,
		}
		err := db.Gorm.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error
		if err != nil {
			return errors.Wrap(err, "seed like")
		}
	}

	log.Infof("seeded %d users, %d posts and up to %d likes (password %q)", seedUsers, seedPosts, seedLikes, seedPassword)
	return nil
}
