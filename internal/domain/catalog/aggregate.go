package catalog

// Aggregate is the cached (average, count) pair derived from an entry's
// reviews.
type Aggregate struct {
	Average float64
	Count   int
}

// Summarize computes the aggregate of reviews. An empty collection yields the
// zero Aggregate.
func Summarize(reviews []Review) Aggregate {
	if len(reviews) == 0 {
		return Aggregate{}
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return Aggregate{
		Average: float64(sum) / float64(len(reviews)),
		Count:   len(reviews),
	}
}

// IndexOfAuthor returns the position of authorID's review, or -1.
func IndexOfAuthor(reviews []Review, authorID string) int {
	for i, r := range reviews {
		if r.AuthorID == authorID {
			return i
		}
	}
	return -1
}

// IndexOfReview returns the position of the review with the given id, or -1.
func IndexOfReview(reviews []Review, reviewID string) int {
	for i, r := range reviews {
		if r.ID == reviewID {
			return i
		}
	}
	return -1
}
