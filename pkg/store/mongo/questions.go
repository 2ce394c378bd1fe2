package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/goverflow/goverflow/pkg/models"
)

// notRemoved matches live documents: the removed field is unset or null.
var notRemoved = bson.M{"removed": nil}

func liveQuestion(id string) bson.M {
	return bson.M{"_id": id, "removed": nil}
}

// InsertQuestion stores the question and maintains the denormalized state
// around it: tag counters (creating missing tag documents), the author's
// created-tags set and the author's subscription snapshot. Returns the names
// of tags that did not exist before this question.
func (s *Store) InsertQuestion(ctx context.Context, q *models.Question, snapshot models.QuestionUpdate) ([]string, error) {
	var createdTags []string
	err := s.withTxn(ctx, func(ctx context.Context) error {
		createdTags = createdTags[:0]
		if _, err := s.questions.InsertOne(ctx, q); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		for _, tag := range q.Tags {
			// Return-before with upsert: no prior document means this
			// question introduced the tag.
			err := s.tags.FindOneAndUpdate(ctx,
				bson.M{"_id": tag},
				bson.M{
					"$inc": bson.M{"countQuestions": 1},
					"$setOnInsert": bson.M{
						"authorId": q.AuthorID,
						"created":  q.Created,
						"defined":  false,
					},
				},
				options.FindOneAndUpdate().SetUpsert(true),
			).Err()
			switch {
			case errors.Is(err, mongo.ErrNoDocuments):
				createdTags = append(createdTags, tag)
			case err != nil:
				return fmt.Errorf("bump tag %q: %w", tag, err)
			}
		}

		update := bson.M{"$set": bson.M{"updates." + q.ID: snapshot}}
		if len(createdTags) > 0 {
			update["$addToSet"] = bson.M{"createdTags": bson.M{"$each": createdTags}}
		}
		if _, err := s.users.UpdateOne(ctx, bson.M{"_id": q.AuthorID}, update); err != nil {
			return fmt.Errorf("update author: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return createdTags, nil
}

func (s *Store) Question(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := s.questions.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	return &q, nil
}

func (s *Store) Questions(ctx context.Context, skip, limit int64) ([]*models.Question, error) {
	return s.findQuestions(ctx, notRemoved, skip, limit)
}

func (s *Store) QuestionsByTag(ctx context.Context, tag string, skip, limit int64) ([]*models.Question, error) {
	return s.findQuestions(ctx, bson.M{"tags": tag, "removed": nil}, skip, limit)
}

// SearchQuestions runs a full-text search over title and text, optionally
// narrowed to questions carrying every listed tag.
func (s *Store) SearchQuestions(ctx context.Context, keywords string, tags []string, skip, limit int64) ([]*models.Question, error) {
	filter := bson.M{"removed": nil}
	if keywords != "" {
		filter["$text"] = bson.M{"$search": keywords}
	}
	if len(tags) > 0 {
		filter["tags"] = bson.M{"$all": tags}
	}
	return s.findQuestions(ctx, filter, skip, limit)
}

func (s *Store) findQuestions(ctx context.Context, filter bson.M, skip, limit int64) ([]*models.Question, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := s.questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cur.Close(ctx)

	var questions []*models.Question
	for cur.Next(ctx) {
		var q models.Question
		if err := cur.Decode(&q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, &q)
	}
	return questions, cur.Err()
}

func (s *Store) EachQuestion(ctx context.Context, fn func(*models.Question) error) error {
	cur, err := s.questions.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("stream questions: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var q models.Question
		if err := cur.Decode(&q); err != nil {
			return fmt.Errorf("decode question: %w", err)
		}
		if err := fn(&q); err != nil {
			return err
		}
	}
	return cur.Err()
}

// appendToQuestion runs a push against a live question and returns the
// subscriber ids from the matched document. No match reports applied=false.
func (s *Store) appendToQuestion(ctx context.Context, filter, update bson.M) ([]string, bool, error) {
	opts := options.FindOneAndUpdate().
		SetProjection(bson.M{"interestedUsers": 1}).
		SetReturnDocument(options.After)

	var q models.Question
	err := s.questions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("update question: %w", err)
	}

	interested := make([]string, 0, len(q.InterestedUsers))
	for id := range q.InterestedUsers {
		interested = append(interested, id)
	}
	return interested, true, nil
}

func (s *Store) AppendAnswer(ctx context.Context, questionID string, a *models.Answer) ([]string, bool, error) {
	return s.appendToQuestion(ctx,
		liveQuestion(questionID),
		bson.M{"$push": bson.M{"answers": a}},
	)
}

func (s *Store) AppendQuestionComment(ctx context.Context, questionID string, c *models.Comment) ([]string, bool, error) {
	return s.appendToQuestion(ctx,
		liveQuestion(questionID),
		bson.M{"$push": bson.M{"comments": c}},
	)
}

func (s *Store) AppendAnswerComment(ctx context.Context, questionID, answerID string, c *models.Comment) ([]string, bool, error) {
	filter := bson.M{
		"_id":     questionID,
		"removed": nil,
		"answers": bson.M{"$elemMatch": bson.M{"id": answerID, "removed": nil}},
	}
	return s.appendToQuestion(ctx, filter,
		bson.M{"$push": bson.M{"answers.$.comments": c}},
	)
}

// Vote setters report applied=false when nothing changed, which covers a
// missing target, a hidden target and a voter repeating the same verdict.

func (s *Store) SetAnswerVote(ctx context.Context, questionID, answerID, voterID string, v models.Vote) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":     questionID,
			"removed": nil,
			"answers": bson.M{"$elemMatch": bson.M{"id": answerID, "removed": nil}},
		},
		bson.M{"$set": bson.M{"answers.$.votes." + voterID: v}},
	)
}

func (s *Store) UnsetAnswerVote(ctx context.Context, questionID, answerID, voterID string) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":     questionID,
			"removed": nil,
			"answers": bson.M{"$elemMatch": bson.M{"id": answerID, "removed": nil}},
		},
		bson.M{"$unset": bson.M{"answers.$.votes." + voterID: ""}},
	)
}

func (s *Store) SetQuestionCommentVote(ctx context.Context, questionID, commentID, voterID string, v models.Vote) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":      questionID,
			"removed":  nil,
			"comments": bson.M{"$elemMatch": bson.M{"id": commentID, "removed": nil}},
		},
		bson.M{"$set": bson.M{"comments.$.votes." + voterID: v}},
	)
}

func (s *Store) UnsetQuestionCommentVote(ctx context.Context, questionID, commentID, voterID string) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":      questionID,
			"removed":  nil,
			"comments": bson.M{"$elemMatch": bson.M{"id": commentID, "removed": nil}},
		},
		bson.M{"$unset": bson.M{"comments.$.votes." + voterID: ""}},
	)
}

func (s *Store) SetAnswerCommentVote(ctx context.Context, questionID, answerID, commentID, voterID string, v models.Vote) (bool, error) {
	res, err := s.questions.UpdateOne(ctx,
		liveQuestion(questionID),
		bson.M{"$set": bson.M{"answers.$[a].comments.$[c].votes." + voterID: v}},
		options.UpdateOne().SetArrayFilters([]any{
			bson.M{"a.id": answerID, "a.removed": nil},
			bson.M{"c.id": commentID, "c.removed": nil},
		}),
	)
	if err != nil {
		return false, fmt.Errorf("update question: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) UnsetAnswerCommentVote(ctx context.Context, questionID, answerID, commentID, voterID string) (bool, error) {
	res, err := s.questions.UpdateOne(ctx,
		liveQuestion(questionID),
		bson.M{"$unset": bson.M{"answers.$[a].comments.$[c].votes." + voterID: ""}},
		options.UpdateOne().SetArrayFilters([]any{
			bson.M{"a.id": answerID, "a.removed": nil},
			bson.M{"c.id": commentID, "c.removed": nil},
		}),
	)
	if err != nil {
		return false, fmt.Errorf("update question: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) updateQuestion(ctx context.Context, filter, update bson.M) (bool, error) {
	res, err := s.questions.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("update question: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) SetSolved(ctx context.Context, questionID string, solved bool) ([]string, bool, error) {
	return s.appendToQuestion(ctx,
		liveQuestion(questionID),
		bson.M{"$set": bson.M{"solved": solved}},
	)
}

func (s *Store) MarkAnswerSolution(ctx context.Context, questionID, answerID, authorID string) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{"_id": questionID, "authorId": authorID, "answers.id": answerID},
		bson.M{"$set": bson.M{"solutionAnswerId": answerID}},
	)
}

func (s *Store) UnmarkAnswerSolution(ctx context.Context, questionID, authorID string) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{"_id": questionID, "authorId": authorID, "solutionAnswerId": bson.M{"$gt": ""}},
		bson.M{"$unset": bson.M{"solutionAnswerId": ""}},
	)
}

// Moderator removals keep the content in place and stamp it with the
// removal record; the guard makes a second removal a no-op.

func (s *Store) RemoveQuestion(ctx context.Context, questionID string, rm models.RemovedPost) (bool, error) {
	return s.updateQuestion(ctx,
		liveQuestion(questionID),
		bson.M{"$set": bson.M{"removed": rm}},
	)
}

func (s *Store) RemoveAnswer(ctx context.Context, questionID, answerID string, rm models.RemovedPost) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":     questionID,
			"answers": bson.M{"$elemMatch": bson.M{"id": answerID, "removed": nil}},
		},
		bson.M{"$set": bson.M{"answers.$.removed": rm}},
	)
}

func (s *Store) RemoveQuestionComment(ctx context.Context, questionID, commentID string, rm models.RemovedPost) (bool, error) {
	return s.updateQuestion(ctx,
		bson.M{
			"_id":      questionID,
			"comments": bson.M{"$elemMatch": bson.M{"id": commentID, "removed": nil}},
		},
		bson.M{"$set": bson.M{"comments.$.removed": rm}},
	)
}

func (s *Store) RemoveAnswerComment(ctx context.Context, questionID, answerID, commentID string, rm models.RemovedPost) (bool, error) {
	res, err := s.questions.UpdateOne(ctx,
		bson.M{"_id": questionID},
		bson.M{"$set": bson.M{"answers.$[a].comments.$[c].removed": rm}},
		options.UpdateOne().SetArrayFilters([]any{
			bson.M{"a.id": answerID},
			bson.M{"c.id": commentID, "c.removed": nil},
		}),
	)
	if err != nil {
		return false, fmt.Errorf("update question: %w", err)
	}
	return res.ModifiedCount > 0, nil
}
