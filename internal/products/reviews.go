package products

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/models"
)

// upsertReview stores r as the author's only review of p. It reports
// whether a new review was added rather than an old one overwritten.
func upsertReview(p *models.Product, r models.Review) bool {
	for i := range p.Reviews {
		if p.Reviews[i].UserID == r.UserID {
			p.Reviews[i].Rating = r.Rating
			p.Reviews[i].Comment = r.Comment
			p.Reviews[i].Name = r.Name
			recomputeRating(p)
			return false
		}
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	p.Reviews = append(p.Reviews, r)
	recomputeRating(p)
	return true
}

// removeReview deletes reviewID from p if requester wrote it.
func removeReview(p *models.Product, reviewID, requester primitive.ObjectID) error {
	for i, r := range p.Reviews {
		if r.ID != reviewID {
			continue
		}
		if r.UserID != requester {
			return apperr.Forbidden("You can only delete your own review")
		}
		p.Reviews = append(p.Reviews[:i:i], p.Reviews[i+1:]...)
		recomputeRating(p)
		return nil
	}
	return apperr.NotFound("Review not found")
}

func recomputeRating(p *models.Product) {
	p.NumOfReviews = len(p.Reviews)
	if p.NumOfReviews == 0 {
		p.Rating = 0
		return
	}
	var sum float64
	for _, r := range p.Reviews {
		sum += r.Rating
	}
	p.Rating = sum / float64(p.NumOfReviews)
}
