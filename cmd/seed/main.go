package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/silano08/tokingtoking/internal/database"
	"github.com/silano08/tokingtoking/internal/models"
	"github.com/silano08/tokingtoking/internal/repository"
	"github.com/silano08/tokingtoking/migrations"
	"github.com/silano08/tokingtoking/pkg/logger"
)

// Seed files carry fields the API models never serialize (level, answers).
type seedWord struct {
	Word            string  `json:"word"`
	PartOfSpeech    string  `json:"pos"`
	DefinitionKo    string  `json:"definition_ko"`
	DefinitionEn    string  `json:"definition_en"`
	ExampleSentence string  `json:"example_sentence"`
	Pronunciation   *string `json:"pronunciation"`
	Level           string  `json:"level"`
}

type seedQuestion struct {
	ID              string          `json:"id"`
	QuestionType    string          `json:"question_type"`
	QuestionText    string          `json:"question_text"`
	Options         json.RawMessage `json:"options"`
	CorrectAnswer   string          `json:"correct_answer"`
	Level           string          `json:"level"`
	DifficultyScore int             `json:"difficulty_score"`
}

func main() {
	dataDir := flag.String("data", "./data/seed", "Directory containing vocabularies.json and level_test_questions.json")
	migrate := flag.Bool("migrate", true, "Apply migrations before seeding")
	flag.Parse()

	godotenv.Load()
	log := logger.New(os.Getenv("ENV"))
	defer log.Sync()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := database.NewPostgresPool(databaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", zap.Error(err))
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *migrate {
		if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
			log.Fatal("Database migration failed", zap.Error(err))
		}
	}

	words, err := seedVocabularies(ctx, repository.NewVocabRepo(pool), filepath.Join(*dataDir, "vocabularies.json"))
	if err != nil {
		log.Fatal("Seeding vocabularies failed", zap.Error(err))
	}
	log.Info("Seeded vocabulary words", zap.Int("count", words))

	questions, err := seedQuestions(ctx, repository.NewLevelTestRepo(pool), filepath.Join(*dataDir, "level_test_questions.json"))
	if err != nil {
		log.Fatal("Seeding level test questions failed", zap.Error(err))
	}
	log.Info("Seeded level test questions", zap.Int("count", questions))
}

func seedVocabularies(ctx context.Context, repo *repository.VocabRepo, path string) (int, error) {
	var words []seedWord
	if err := loadJSON(path, &words); err != nil {
		return 0, err
	}
	for _, w := range words {
		word := models.VocabularyWord{
			Word:            w.Word,
			PartOfSpeech:    w.PartOfSpeech,
			DefinitionKo:    w.DefinitionKo,
			DefinitionEn:    w.DefinitionEn,
			ExampleSentence: w.ExampleSentence,
			Pronunciation:   w.Pronunciation,
			Level:           w.Level,
		}
		if err := repo.Upsert(ctx, &word); err != nil {
			return 0, fmt.Errorf("upsert %q: %w", w.Word, err)
		}
	}
	return len(words), nil
}

func seedQuestions(ctx context.Context, repo *repository.LevelTestRepo, path string) (int, error) {
	var questions []seedQuestion
	if err := loadJSON(path, &questions); err != nil {
		return 0, err
	}
	for _, q := range questions {
		question := models.LevelTestQuestion{
			ID:              q.ID,
			QuestionType:    q.QuestionType,
			QuestionText:    q.QuestionText,
			Options:         q.Options,
			CorrectAnswer:   q.CorrectAnswer,
			Level:           q.Level,
			DifficultyScore: q.DifficultyScore,
		}
		if err := repo.Upsert(ctx, &question); err != nil {
			return 0, fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}
	return len(questions), nil
}

func loadJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
