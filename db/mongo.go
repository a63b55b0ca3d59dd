package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hotfeed/feeds"
	"hotfeed/models"
	"hotfeed/query"
)

type imageDocument struct {
	MimeType string             `bson:"mimeType"`
	Size     int64              `bson:"size"`
	Id       primitive.ObjectID `bson:"id"`
}

type commentDocument struct {
	Id        primitive.ObjectID `bson:"_id"`
	Author    primitive.ObjectID `bson:"author"`
	Body      string             `bson:"body"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type postDocument struct {
	Id        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Link      string             `bson:"link"`
	Body      string             `bson:"body"`
	Author    primitive.ObjectID `bson:"author"`
	Score     int                `bson:"score"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
	Comments  []commentDocument  `bson:"comments"`
	Image     *imageDocument     `bson:"image,omitempty"`
}

type rankedDocument struct {
	Id           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	Link         string             `bson:"link"`
	Body         string             `bson:"body"`
	Author       primitive.ObjectID `bson:"author"`
	Score        int                `bson:"score"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
	SortValue    float64            `bson:"sortValue"`
	CommentCount int                `bson:"commentCount"`
}

type userDocument struct {
	Id        primitive.ObjectID `bson:"_id"`
	UserName  string             `bson:"userName"`
	Email     string             `bson:"email"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// MongoStore keeps posts with embedded comments, users and GridFS images in MongoDB
type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
	users  *mongo.Collection
	images *gridfs.Bucket
}

func addIndex(ctx context.Context, collection *mongo.Collection, field string) error {
	index := mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
	}
	_, err := collection.Indexes().CreateOne(ctx, index)
	return err
}

// NewMongoStore connects, pings and prepares indexes
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", models.ErrStoreUnavailable, err)
	}

	s, err := newMongoStore(client, database)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func newMongoStore(client *mongo.Client, database string) (*MongoStore, error) {
	db := client.Database(database)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("images"))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}

	return &MongoStore{
		client: client,
		posts:  db.Collection("posts"),
		users:  db.Collection("users"),
		images: bucket,
	}, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the feed and author lookups use
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, field := range []string{"createdAt", "author"} {
		if err := addIndex(ctx, s.posts, field); err != nil {
			return fmt.Errorf("index posts.%s: %w", field, err)
		}
	}
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userName", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("index users.userName: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// RankedPipeline is the aggregation behind RankedPage. Ranking, sorting and
// pagination run over every post; comment counting runs after $limit so
// skipped posts are never touched.
func RankedPipeline(q query.RankedQuery) mongo.Pipeline {
	now := primitive.NewDateTimeFromTime(q.Now)

	ageHours := bson.D{{Key: "$divide", Value: bson.A{
		bson.D{{Key: "$max", Value: bson.A{
			bson.D{{Key: "$subtract", Value: bson.A{now, "$createdAt"}}},
			0,
		}}},
		feeds.MillisPerHour,
	}}}

	sortValue := bson.D{{Key: "$divide", Value: bson.A{
		bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$score", 0}}},
			1,
		}}},
		bson.D{{Key: "$pow", Value: bson.A{
			bson.D{{Key: "$add", Value: bson.A{1, ageHours}}},
			feeds.DecayExponent,
		}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{{Key: "sortValue", Value: sortValue}}}},
		{{Key: "$sort", Value: bson.D{{Key: "sortValue", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: int64(q.Offset())}},
		{{Key: "$limit", Value: int64(q.Limit)}},
		{{Key: "$addFields", Value: bson.D{{Key: "commentCount", Value: bson.D{
			{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$comments", bson.A{}}}}},
		}}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "title", Value: 1},
			{Key: "link", Value: 1},
			{Key: "body", Value: 1},
			{Key: "author", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$score", 0}}}},
			{Key: "createdAt", Value: 1},
			{Key: "updatedAt", Value: 1},
			{Key: "sortValue", Value: 1},
			{Key: "commentCount", Value: 1},
		}}},
	}
}

func (s *MongoStore) RankedPage(ctx context.Context, q query.RankedQuery) ([]models.RankedRow, error) {
	if q.OffsetOverflows() {
		return []models.RankedRow{}, nil
	}
	cur, err := s.posts.Aggregate(ctx, RankedPipeline(q))
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate: %w", models.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	rows := []models.RankedRow{}
	for cur.Next(ctx) {
		var doc rankedDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode: %w", models.ErrStoreUnavailable, err)
		}
		rows = append(rows, models.RankedRow{
			Id:           doc.Id.Hex(),
			Title:        doc.Title,
			Link:         doc.Link,
			Body:         doc.Body,
			AuthorId:     doc.Author.Hex(),
			Score:        doc.Score,
			CreatedAt:    doc.CreatedAt.UTC(),
			UpdatedAt:    doc.UpdatedAt.UTC(),
			SortValue:    doc.SortValue,
			CommentCount: doc.CommentCount,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %w", models.ErrStoreUnavailable, err)
	}
	return rows, nil
}

func (s *MongoStore) CountPosts(ctx context.Context) (int64, error) {
	count, err := s.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", models.ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *MongoStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	var doc postDocument
	err = s.posts.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find post: %w", models.ErrStoreUnavailable, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) InsertPost(ctx context.Context, post *models.Post) error {
	doc, err := newPostDocument(post)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id":     doc.Id.Hex(),
		"author": post.AuthorId,
	}).Info("Creating post")

	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: insert post: %w", models.ErrPersistFailure, err)
	}

	post.Id = doc.Id.Hex()
	for i := range post.Comments {
		post.Comments[i].Id = doc.Comments[i].Id.Hex()
	}
	return nil
}

func (s *MongoStore) UpdatePost(ctx context.Context, id string, edit models.PostEdit, at time.Time) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: edit.Title},
		{Key: "link", Value: edit.Link},
		{Key: "body", Value: edit.Body},
		{Key: "updatedAt", Value: at},
	}}}

	var doc postDocument
	err = s.posts.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: oid}},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update post: %w", models.ErrPersistFailure, err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) DeletePost(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	res, err := s.posts.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("%w: delete post: %w", models.ErrPersistFailure, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) AddComment(ctx context.Context, postId string, comment *models.Comment) error {
	oid, err := primitive.ObjectIDFromHex(postId)
	if err != nil {
		return fmt.Errorf("post %s: %w", postId, models.ErrNotFound)
	}
	doc, err := newCommentDocument(comment)
	if err != nil {
		return err
	}

	res, err := s.posts.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "comments", Value: doc}}}},
	)
	if err != nil {
		return fmt.Errorf("%w: push comment: %w", models.ErrPersistFailure, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("post %s: %w", postId, models.ErrNotFound)
	}
	comment.Id = doc.Id.Hex()
	return nil
}

// GetUsers skips ids that are not ObjectIDs; they cannot reference a user
func (s *MongoStore) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return users, nil
	}

	cur, err := s.users.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
	if err != nil {
		return nil, fmt.Errorf("%w: find users: %w", models.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode user: %w", models.ErrStoreUnavailable, err)
		}
		users[doc.Id.Hex()] = models.User{
			Id:        doc.Id.Hex(),
			UserName:  doc.UserName,
			Email:     doc.Email,
			CreatedAt: doc.CreatedAt.UTC(),
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %w", models.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	oid := primitive.NewObjectID()
	if user.Id != "" {
		var err error
		if oid, err = primitive.ObjectIDFromHex(user.Id); err != nil {
			return fmt.Errorf("%w: user id %q is not an ObjectID", models.ErrPersistFailure, user.Id)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	doc := userDocument{Id: oid, UserName: user.UserName, Email: user.Email, CreatedAt: user.CreatedAt}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: insert user: %w", models.ErrPersistFailure, err)
	}
	user.Id = oid.Hex()
	return nil
}

// Put uploads an image into the GridFS images bucket
func (s *MongoStore) Put(ctx context.Context, name string, data []byte, meta models.BlobMeta) (string, error) {
	id, err := s.images.UploadFromStream(name, bytes.NewReader(data), options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", models.ErrPersistFailure, name, err)
	}
	return id.Hex(), nil
}

func newPostDocument(post *models.Post) (*postDocument, error) {
	author, err := primitive.ObjectIDFromHex(post.AuthorId)
	if err != nil {
		return nil, fmt.Errorf("%w: author %q is not an ObjectID", models.ErrInvalidPost, post.AuthorId)
	}

	doc := &postDocument{
		Id:        primitive.NewObjectID(),
		Title:     post.Title,
		Link:      post.Link,
		Body:      post.Body,
		Author:    author,
		Score:     post.Score,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
		Comments:  make([]commentDocument, 0, len(post.Comments)),
	}
	for i := range post.Comments {
		comment, err := newCommentDocument(&post.Comments[i])
		if err != nil {
			return nil, err
		}
		doc.Comments = append(doc.Comments, *comment)
	}
	if post.Image != nil {
		imageId, err := primitive.ObjectIDFromHex(post.Image.Id)
		if err != nil {
			return nil, fmt.Errorf("%w: image %q is not an ObjectID", models.ErrInvalidPost, post.Image.Id)
		}
		doc.Image = &imageDocument{MimeType: post.Image.MimeType, Size: post.Image.Size, Id: imageId}
	}
	return doc, nil
}

func newCommentDocument(comment *models.Comment) (*commentDocument, error) {
	author, err := primitive.ObjectIDFromHex(comment.AuthorId)
	if err != nil {
		return nil, fmt.Errorf("%w: comment author %q is not an ObjectID", models.ErrInvalidPost, comment.AuthorId)
	}
	return &commentDocument{
		Id:        primitive.NewObjectID(),
		Author:    author,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}, nil
}

func (doc *postDocument) toModel() *models.Post {
	post := &models.Post{
		Id:        doc.Id.Hex(),
		Title:     doc.Title,
		Link:      doc.Link,
		Body:      doc.Body,
		AuthorId:  doc.Author.Hex(),
		Score:     doc.Score,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
		Comments:  make([]models.Comment, 0, len(doc.Comments)),
	}
	for _, c := range doc.Comments {
		post.Comments = append(post.Comments, models.Comment{
			Id:        c.Id.Hex(),
			AuthorId:  c.Author.Hex(),
			Body:      c.Body,
			CreatedAt: c.CreatedAt.UTC(),
		})
	}
	if doc.Image != nil {
		post.Image = &models.Image{MimeType: doc.Image.MimeType, Size: doc.Image.Size, Id: doc.Image.Id.Hex()}
	}
	return post
}

var _ query.PostStore = (*MongoStore)(nil)
var _ query.UserStore = (*MongoStore)(nil)
var _ query.BlobStore = (*MongoStore)(nil)
