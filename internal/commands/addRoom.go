package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"boltalka/internal/api"
	"boltalka/internal/config"
	"boltalka/internal/models"
)

// AddRoom creates or updates a room through the admin API of a running
// server, which also refreshes the room list of connected clients.
func AddRoom(req api.AddRoomRequest, cfg *config.Config) error {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/rooms", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add room (Status: %d): %s", resp.StatusCode, string(body))
	}

	var room models.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nRoom Saved Successfully!\n")
	fmt.Printf("Name:         %s\n", room.Name)
	fmt.Printf("Display Name: %s\n", room.DisplayName)
	if room.Description != "" {
		fmt.Printf("Description:  %s\n", room.Description)
	}
	return nil
}
