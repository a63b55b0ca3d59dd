package models

import "time"

// User is the full user record as stored in the users collection
type User struct {
	Id        string    `json:"id"`
	UserName  string    `json:"userName"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Author is the minimal projection of a user joined onto feed rows
type Author struct {
	Id       string `json:"id"`
	UserName string `json:"userName"`
}

// Image references an attachment held in blob storage
type Image struct {
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Id       string `json:"id"`
}

type Comment struct {
	Id        string    `json:"id"`
	AuthorId  string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Post model with the stored fields. AuthorId is a weak reference to a User.
type Post struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Body      string    `json:"body"`
	AuthorId  string    `json:"author"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Comments  []Comment `json:"comments"`
	Image     *Image    `json:"image,omitempty"`
}

// PostEdit holds the only fields an author may change
type PostEdit struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Body  string `json:"body"`
}

// NewPost is the submission payload for a post
type NewPost struct {
	Title string `json:"title" form:"title"`
	Link  string `json:"link" form:"link"`
	Body  string `json:"body" form:"body"`
}

// Upload is an image attached to a new post
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// BlobMeta is stored alongside blob bytes
type BlobMeta struct {
	MimeType string `json:"mimeType" bson:"mimeType"`
	Size     int64  `json:"size" bson:"size"`
}

// RankedRow is what a store returns for one ranked page entry, before
// the author projection is joined on.
type RankedRow struct {
	Id           string
	Title        string
	Link         string
	Body         string
	AuthorId     string
	Score        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SortValue    float64
	CommentCount int
}

// RankedPost is the read-only feed projection. Never persisted.
type RankedPost struct {
	Id           string    `json:"id"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Score        int       `json:"score"`
	CommentCount int       `json:"commentCount"`
	Author       Author    `json:"author"`
	SortValue    float64   `json:"-"`
}

type FeedResponse struct {
	Posts      []RankedPost `json:"posts"`
	TotalPages int          `json:"totalPages"`
}

// CommentDetail is a comment with its author resolved
type CommentDetail struct {
	Id        string    `json:"id"`
	Author    User      `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostDetail is a single post with its author and comment authors resolved
type PostDetail struct {
	Id        string          `json:"id"`
	Title     string          `json:"title"`
	Link      string          `json:"link"`
	Body      string          `json:"body"`
	Author    User            `json:"author"`
	Score     int             `json:"score"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Comments  []CommentDetail `json:"comments"`
	Image     *Image          `json:"image,omitempty"`
}
