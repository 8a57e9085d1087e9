package session

import "context"

// Analysis is the structured result of analyzing one caller utterance.
type Analysis struct {
	Transcript string  `json:"transcript"`
	Emotion    string  `json:"emotion"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// SpeechAnalyzer turns raw caller speech into a transcript with emotion and
// intent labels. Implementations live outside the core; webhook handlers
// call it before handing the turn to the Manager.
type SpeechAnalyzer interface {
	Analyze(ctx context.Context, audioURL, transcript string) (Analysis, error)
}

// EmotionBucket groups raw emotion labels into the tone categories the
// prompt templates distinguish.
type EmotionBucket string

const (
	BucketNeutral   EmotionBucket = "neutral"
	BucketPositive  EmotionBucket = "positive"
	BucketNegative  EmotionBucket = "negative"
	BucketConfused  EmotionBucket = "confused"
	BucketImpatient EmotionBucket = "impatient"
)

// bucketFor maps a raw detected emotion label onto a prompt bucket.
// Unrecognized labels land in neutral.
func bucketFor(emotion string) EmotionBucket {
	switch emotion {
	case "happiness", "love", "surprise", "desire", "excitement":
		return BucketPositive
	case "sadness", "anger", "fear", "disgust", "shame", "guilt":
		return BucketNegative
	case "confusion":
		return BucketConfused
	case "sarcasm", "impatience", "annoyance":
		return BucketImpatient
	default:
		return BucketNeutral
	}
}
