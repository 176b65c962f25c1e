package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/nestpost/nestpost/config"
	"github.com/nestpost/nestpost/models"
	"github.com/nestpost/nestpost/stores"
)

// Seeds the configured database with a demo user and a spread of dated posts,
// including a small reply thread, for local development.
func main() {
	count := flag.Int("posts", 100, "number of top-level posts to insert")
	flag.Parse()

	config.Load()
	db := config.InitDatabase(&models.User{}, &models.Post{})

	users := stores.NewUserStore(db)
	userID, err := users.Register("test", "test")
	if err != nil {
		log.Fatalf("register demo user: %v", err)
	}
	log.Printf("registered demo user %q (id=%d)", "test", userID)

	// Spread creation dates across a year so the window filter has data on
	// both sides of any boundary.
	for i := 0; i < *count; i++ {
		created := time.Date(2021, time.Month(i%11+1), rand.Intn(27)+1, 0, 0, 0, 0, time.UTC)
		post := models.Post{
			Title:    fmt.Sprintf("test title %d", i),
			Body:     fmt.Sprintf("test body body body %d", i),
			Created:  created,
			AuthorID: userID,
		}
		if err := db.Create(&post).Error; err != nil {
			log.Fatalf("insert post %d: %v", i, err)
		}
	}
	log.Printf("inserted %d posts", *count)

	posts := stores.NewPostStore(db)
	rootID, err := posts.Create("thread root", "a post with replies", userID, nil)
	if err != nil {
		log.Fatalf("insert thread root: %v", err)
	}
	childID, err := posts.Create("first reply", "replying to the root", userID, &rootID)
	if err != nil {
		log.Fatalf("insert reply: %v", err)
	}
	if _, err := posts.Create("second reply", "replying to the reply", userID, &childID); err != nil {
		log.Fatalf("insert nested reply: %v", err)
	}
	log.Printf("inserted demo thread rooted at post %d", rootID)
}
