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

var seedInterests = []string{
	"hiking", "cooking", "travel", "reading", "football", "photography",
	"music", "gaming", "art", "fitness", "volunteering", "cinema",
}

var seedValues = []string{
	"family", "faith", "ambition", "honesty", "humour", "kindness",
}

// SeedTestData resets the database and populates it with demo profiles,
// matches, channels and messages.
//
// Behavior:
//  1. Clears existing data in `messages`, `channels`, `matches` and `users`.
//  2. Creates 20 users (10 male, 10 female) with hashed passwords, ages 20..45,
//     random interests and partner values; every 5th user is unverified.
//  3. Creates pending matches for roughly a third of opposite-gender pairs of
//     the first users and promotes every 2nd one to matched with a channel and
//     a short conversation.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "channels", "matches", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		for _, table := range []string{"messages", "channels", "matches", "users"} {
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		}
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('messages', 'channels', 'matches', 'users')")
	}

	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// --- Seed Users (10 male, 10 female) ---
	users := make([]User, 0, 20)
	for i := 1; i <= 20; i++ {
		gender := "male"
		if i > 10 {
			gender = "female"
		}

		user := User{
			Username:      fmt.Sprintf("user%d", i),
			Email:         fmt.Sprintf("user%d@example.com", i),
			PasswordHash:  string(hash),
			Gender:        gender,
			Age:           20 + r.Intn(26),
			Verified:      i%5 != 0,
			Premium:       i%7 == 0,
			PushToken:     fmt.Sprintf("device-token-%d", i),
			Interests:     pick(r, seedInterests, 4),
			PartnerValues: pick(r, seedValues, 2),
			Active:        true,
			LastLoginAt:   time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour),
		}

		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		users = append(users, user)
	}
	log.Println("Seeded 20 users.")

	// --- Seed Matches / Channels / Messages ---
	counter := 0
	for _, a := range users[:5] {
		for _, b := range users[10:15] {
			if r.Intn(3) != 0 {
				continue
			}

			match := Match{
				PairKey:            PairKey(a.ID, b.ID),
				UserAID:            a.ID,
				UserBID:            b.ID,
				CompatibilityScore: 65 + r.Intn(36),
				Status:             MatchStatusPending,
			}
			if counter%2 == 0 {
				match.Status = MatchStatusMatched
			}
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&match).Error; err != nil {
				return fmt.Errorf("failed to seed match: %w", err)
			}
			counter++

			if match.Status != MatchStatusMatched || match.ID == 0 {
				continue
			}
			if err := seedConversation(db, match, r); err != nil {
				return err
			}
		}
	}
	log.Printf("Seeded %d matches.", counter)

	return nil
}

func seedConversation(db *gorm.DB, match Match, r *rand.Rand) error {
	channel := Channel{
		MatchID:        match.ID,
		ParticipantAID: match.UserAID,
		ParticipantBID: match.UserBID,
	}
	if err := db.Create(&channel).Error; err != nil {
		return fmt.Errorf("failed to seed channel: %w", err)
	}

	lines := []string{"Salaam! How's your week going?", "Pretty good, just back from a hike.", "Nice, where did you go?"}
	at := time.Now().UTC().Add(-time.Duration(r.Intn(48)+1) * time.Hour).Truncate(time.Millisecond)
	for i, line := range lines {
		sender := match.UserAID
		if i%2 == 1 {
			sender = match.UserBID
		}
		at = at.Add(time.Duration(r.Intn(10)+1) * time.Minute)
		msg := Message{ChannelID: channel.ID, SenderID: sender, Content: line, Type: MessageTypeText, CreatedAt: at}
		if err := db.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to seed message: %w", err)
		}
	}

	return db.Model(&Channel{}).Where("id = ?", channel.ID).Updates(map[string]any{
		"last_message_preview": lines[len(lines)-1],
		"last_message_at":      at,
	}).Error
}

func pick(r *rand.Rand, pool []string, n int) []string {
	idx := r.Perm(len(pool))
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, pool[i])
	}
	return out
}
