package app_test

import (
	"testing"

	"streamquiz/internal/app"
	"streamquiz/internal/domain"
)

func sampleQuestion() domain.Question {
	return domain.Question{
		Prompt:        "What is the capital of France?",
		Options:       []string{"Paris", "Lyon", "Marseille"},
		CorrectAnswer: "A",
	}
}

func TestValidateCorrectAndWrong(t *testing.T) {
	r := app.NewRegistry([]int{1, 4})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")
	r.Upsert("bob", "")

	w := app.NewAnswerWindow()
	w.Open()
	q := sampleQuestion()

	res := scorer.Validate(w, q, "alice", " a ")
	if !res.Accepted || !res.Correct {
		t.Fatalf("normalized correct answer should score, got %+v", res)
	}
	if res.Player.Score != 1 || res.Player.Level != 2 {
		t.Fatalf("expected score 1 level 2, got %+v", res.Player)
	}
	if !res.LeveledUp {
		t.Fatalf("crossing a threshold should report a level up")
	}

	res = scorer.Validate(w, q, "bob", "B")
	if !res.Accepted || res.Correct {
		t.Fatalf("wrong option should be accepted but incorrect, got %+v", res)
	}
	if res.Player.Score != 0 {
		t.Fatalf("score must not drop below the level floor, got %d", res.Player.Score)
	}
}

func TestTwoPlayersScoreInSameWindow(t *testing.T) {
	r := app.NewRegistry([]int{5, 10})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")
	r.Upsert("bob", "")

	w := app.NewAnswerWindow()
	w.Open()
	q := sampleQuestion()

	for _, name := range []string{"alice", "bob"} {
		res := scorer.Validate(w, q, name, "A")
		if !res.Accepted || !res.Correct {
			t.Fatalf("%s should score, got %+v", name, res)
		}
		if res.Won {
			t.Fatalf("%s must not win below the top level", name)
		}
		if res.Player.Score != 1 {
			t.Fatalf("%s expected score 1, got %d", name, res.Player.Score)
		}
	}
}

func TestValidateScoresEachIdentityOnce(t *testing.T) {
	r := app.NewRegistry([]int{1, 4})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")

	w := app.NewAnswerWindow()
	w.Open()
	q := sampleQuestion()

	if res := scorer.Validate(w, q, "alice", "A"); !res.Accepted {
		t.Fatalf("first answer should score")
	}
	if res := scorer.Validate(w, q, "alice", "A"); res.Accepted {
		t.Fatalf("second answer on the same question must be rejected")
	}
	p, _ := r.Get("alice")
	if p.Score != 1 {
		t.Fatalf("expected score 1 after duplicate rejection, got %d", p.Score)
	}
}

func TestValidateRejectsOutOfRangeAndUnknown(t *testing.T) {
	r := app.NewRegistry([]int{1})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")

	w := app.NewAnswerWindow()
	w.Open()
	q := sampleQuestion()

	for _, raw := range []string{"D", "AB", "", "1", "paris"} {
		if res := scorer.Validate(w, q, "alice", raw); res.Accepted {
			t.Fatalf("answer %q should be rejected", raw)
		}
	}
	if res := scorer.Validate(w, q, "ghost", "A"); res.Accepted {
		t.Fatalf("unknown identity should be rejected")
	}
	p, _ := r.Get("alice")
	if p.Score != 0 {
		t.Fatalf("rejected answers must not move the score, got %d", p.Score)
	}
}

func TestValidateWindowStates(t *testing.T) {
	r := app.NewRegistry([]int{1})
	r.Upsert("alice", "")
	q := sampleQuestion()

	w := app.NewAnswerWindow()
	scorer := app.NewScorer(r, true)
	if res := scorer.Validate(w, q, "alice", "A"); res.Accepted {
		t.Fatalf("waiting window must reject")
	}

	w.Open()
	w.Grace()
	if res := scorer.Validate(w, q, "alice", "A"); !res.Accepted {
		t.Fatalf("grace answers should score under the default policy")
	}

	r2 := app.NewRegistry([]int{1})
	r2.Upsert("alice", "")
	w2 := app.NewAnswerWindow()
	w2.Open()
	w2.Grace()
	strict := app.NewScorer(r2, false)
	if res := strict.Validate(w2, q, "alice", "A"); res.Accepted {
		t.Fatalf("grace answers must be rejected when the policy disallows them")
	}

	w.Close()
	if res := scorer.Validate(w, q, "bob", "A"); res.Accepted {
		t.Fatalf("closed window must reject")
	}
}

func TestWrongAnswerFloorsAtLevelMinimum(t *testing.T) {
	r := app.NewRegistry([]int{1, 4})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")
	q := sampleQuestion()

	// climb to score 2, level 2
	for i := 0; i < 2; i++ {
		w := app.NewAnswerWindow()
		w.Open()
		if res := scorer.Validate(w, q, "alice", "A"); !res.Accepted {
			t.Fatalf("climb answer %d rejected", i)
		}
	}

	// one wrong answer drops to 1; the next is floored at the level-2 minimum
	for i := 0; i < 3; i++ {
		w := app.NewAnswerWindow()
		w.Open()
		if res := scorer.Validate(w, q, "alice", "B"); !res.Accepted {
			t.Fatalf("wrong answer %d rejected", i)
		}
	}
	p, _ := r.Get("alice")
	if p.Score != 1 || p.Level != 2 {
		t.Fatalf("expected floor at score 1 level 2, got score %d level %d", p.Score, p.Level)
	}
}

func TestValidateReportsWin(t *testing.T) {
	r := app.NewRegistry([]int{1, 2})
	scorer := app.NewScorer(r, true)
	r.Upsert("alice", "")
	q := sampleQuestion()

	var last app.ScoreResult
	for i := 0; i < 2; i++ {
		w := app.NewAnswerWindow()
		w.Open()
		last = scorer.Validate(w, q, "alice", "A")
	}
	if !last.Won {
		t.Fatalf("reaching the top level on a correct answer should win, got %+v", last)
	}
}
