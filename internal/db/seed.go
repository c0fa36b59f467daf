package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with demo data.
//
// Behavior:
//  1. Clears all engine tables.
//  2. Creates 20 users (10 male, 10 female) with profiles and hashed passwords.
//  3. Approves two matchmakers.
//  4. Generates ~150 actions with ~70% likes, guaranteeing some mutual pairs.
//  5. Adds a couple of blocks and one open introduction.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"conversations", "introductions", "blocks", "actions", "matchmakers", "profiles", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE blocks AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE introductions AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users', 'blocks', 'introductions', 'conversations')")
	}

	log.Println("Cleared existing data")

	bodyTypes := []string{"slim", "average", "athletic", "curvy"}
	ethnicities := []string{"asian", "black", "latino", "white", "mixed"}
	religions := []string{"none", "christian", "muslim", "jewish", "buddhist"}

	// --- Seed Users (10 male, 10 female) ---
	for i := 1; i <= 20; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		gender, lookingFor := "male", "female"
		if i > 10 {
			gender, lookingFor = "female", "male"
		}

		user := User{
			Username:         fmt.Sprintf("user%d", i),
			Email:            fmt.Sprintf("user%d@example.com", i),
			PasswordHash:     string(hash),
			Status:           UserStatusActive,
			Gender:           gender,
			LookingFor:       lookingFor,
			CanStartMatching: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		profile := Profile{
			UserID:      user.ID,
			DisplayName: fmt.Sprintf("User %d", i),
			DateOfBirth: time.Now().AddDate(-(21 + r.Intn(20)), 0, -r.Intn(365)),
			BodyType:    bodyTypes[r.Intn(len(bodyTypes))],
			Ethnicity:   ethnicities[r.Intn(len(ethnicities))],
			Religion:    religions[r.Intn(len(religions))],
			Bio:         "Seeded demo profile",
		}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
	}
	log.Println("Seeded 20 users with profiles.")

	// --- Seed Matchmakers (users 1 and 11 are approved) ---
	for _, id := range []uint64{1, 11} {
		mm := Matchmaker{UserID: id, Status: MatchmakerApproved}
		if err := db.Create(&mm).Error; err != nil {
			return fmt.Errorf("failed to seed matchmaker: %w", err)
		}
	}

	// --- Seed Actions ---
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "is_unmatched", "updated_at"}),
	}
	counter := 0
	for actorID := uint64(1); actorID <= 20; actorID++ {
		for j := 0; j < 8; j++ {
			targetID := uint64(r.Intn(20) + 1)
			if actorID == targetID {
				continue
			}
			// opposite halves only, mirroring the gender split above
			if (actorID <= 10) == (targetID <= 10) {
				continue
			}

			kind := ActionPass
			if r.Intn(100) < 70 {
				kind = ActionLike
			}

			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 {
				kind = ActionLike
				recip := Action{ActorID: targetID, TargetID: actorID, Kind: ActionLike}
				db.Clauses(upsert).Create(&recip)
			}

			action := Action{ActorID: actorID, TargetID: targetID, Kind: kind}
			if err := db.Clauses(upsert).Create(&action).Error; err != nil {
				return fmt.Errorf("failed to seed action: %w", err)
			}
			counter++
		}
	}
	log.Printf("Seeded %d actions.", counter)

	// --- Seed Blocks (user 2 blocks user 12, user 13 blocks user 3) ---
	blocks := []Block{
		{BlockerID: 2, BlockedID: 12},
		{BlockerID: 13, BlockedID: 3},
	}
	for i := range blocks {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&blocks[i]).Error; err != nil {
			return fmt.Errorf("failed to seed block: %w", err)
		}
	}

	// --- Seed an open introduction by matchmaker 1 for users 4 and 14 ---
	intro := Introduction{
		MatchmakerID:  1,
		UserAID:       4,
		UserBID:       14,
		Message:       "You two should meet!",
		UserAResponse: ResponseNone,
		UserBResponse: ResponseNone,
		Outcome:       OutcomeUnset,
		ExpiresAt:     time.Now().Add(72 * time.Hour),
	}
	if err := db.Create(&intro).Error; err != nil {
		return fmt.Errorf("failed to seed introduction: %w", err)
	}

	log.Println("Seed complete.")
	return nil
}
