package twitch

import (
	"time"

	"github.com/nicklaw5/helix/v2"
)

// Category is a game/category as returned by /games/top.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stream is a live stream as returned by /streams.
type Stream struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	UserLogin   string `json:"user_login"`
	UserName    string `json:"user_name"`
	CategoryID  string `json:"game_id"`
	ViewerCount int    `json:"viewer_count"`
}

// User is a channel profile as returned by /users.
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	ViewCount       int64     `json:"view_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Video is an archived broadcast as returned by /videos. Duration arrives as
// a compact string such as "3h2m1s". CategoryID stays empty when the API
// omits it, which /videos currently always does.
type Video struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
	ViewCount   int64     `json:"view_count"`
	Duration    string    `json:"duration"`
	CategoryID  string    `json:"game_id"`
}

// DurationSeconds parses the API duration string into whole seconds.
// Unparseable values count as zero rather than failing the video.
func (v Video) DurationSeconds() int64 {
	d, err := time.ParseDuration(v.Duration)
	if err != nil || d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func categoryFromHelix(g helix.Game) Category {
	return Category{ID: g.ID, Name: g.Name}
}

func streamFromHelix(s helix.Stream) Stream {
	return Stream{
		ID:          s.ID,
		UserID:      s.UserID,
		UserLogin:   s.UserLogin,
		UserName:    s.UserName,
		CategoryID:  s.GameID,
		ViewerCount: s.ViewerCount,
	}
}

func userFromHelix(u helix.User) User {
	return User{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		Description:     u.Description,
		ProfileImageURL: u.ProfileImageURL,
		ViewCount:       int64(u.ViewCount),
		CreatedAt:       u.CreatedAt.Time,
	}
}

func videoFromHelix(v helix.Video) Video {
	published, _ := time.Parse(time.RFC3339, v.PublishedAt)
	return Video{
		ID:          v.ID,
		UserID:      v.UserID,
		UserLogin:   v.UserLogin,
		Title:       v.Title,
		Description: v.Description,
		PublishedAt: published,
		URL:         v.URL,
		ViewCount:   int64(v.ViewCount),
		Duration:    v.Duration,
	}
}
