package chat

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		prompt string
		want   Intent
	}{
		{"What is photosynthesis?", IntentPlain},
		{"generate image of a red fox", IntentImage},
		{"Generate Image of a red fox", IntentImage},
		{"please draw a castle", IntentImage},
		{"paint a sunset over the sea", IntentImage},
		{"create picture of the moon", IntentImage},
		{"show me the water cycle", IntentVideo},
		{"make a video about volcanoes", IntentVideo},
		{"a video of a rocket launch", IntentVideo},
		{"create video for my science class", IntentVideo},
		{"SHOW ME how rainbows form", IntentVideo},
		{"", IntentPlain},
		{"drawing is fun", IntentPlain},
	}
	for _, tc := range cases {
		if got := Classify(tc.prompt); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.prompt, got, tc.want)
		}
	}
}

func TestClassify_VideoWinsOverImage(t *testing.T) {
	// A prompt matching both families resolves to video.
	if got := Classify("show me and draw a dinosaur"); got != IntentVideo {
		t.Errorf("Classify = %v, want IntentVideo", got)
	}
}

func TestIntentString(t *testing.T) {
	if IntentPlain.String() != "plain" || IntentImage.String() != "image" || IntentVideo.String() != "video" {
		t.Errorf("unexpected intent names: %v %v %v", IntentPlain, IntentImage, IntentVideo)
	}
}
