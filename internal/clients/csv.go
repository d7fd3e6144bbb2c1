package clients

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	sl "client_service/internal/lib/logger"
	"client_service/internal/models"
)

var csvHeader = []string{"Nome", "Email", "Telefone", "Criado em", "Atualizado em"}

const dateLayout = "2006-01-02"

// ExportCSV streams every client of the owner to w as CSV, dates truncated
// to day granularity. Rows are written as the storage cursor produces them,
// so memory stays bounded regardless of list size.
func (s *Service) ExportCSV(ctx context.Context, owner models.User, w io.Writer) error {
	const op = "clients.ExportCSV"

	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.repo.EachClientByOwner(ctx, owner.ID, func(c models.Client) error {
		return cw.Write([]string{
			c.Name,
			c.Email,
			c.Phone,
			c.CreatedAt.Format(dateLayout),
			c.UpdatedAt.Format(dateLayout),
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ImportCSV parses an uploaded CSV and persists every row, bound to the
// importing user, as a single atomic batch.
func (s *Service) ImportCSV(ctx context.Context, data []byte, owner models.User) error {
	const op = "clients.ImportCSV"

	log := s.log.With(slog.String("op", op), slog.Int64("owner", owner.ID))

	if len(data) == 0 {
		return ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: missing header row", ErrBadFile)
	}

	cols, err := headerIndex(header)
	if err != nil {
		return err
	}

	var batch []models.Client

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadFile, err)
		}

		client, err := parseRecord(record, cols, owner.ID)
		if err != nil {
			return err
		}

		batch = append(batch, client)
	}

	if err := s.repo.ImportClients(ctx, batch); err != nil {
		log.Error("failed to import clients", sl.Err(err))
		return err
	}

	log.Info("clients imported", slog.Int("count", len(batch)))

	return nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))

	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	for _, name := range csvHeader {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadFile, name)
		}
	}

	return cols, nil
}

// parseRecord builds a client from one CSV row; the date columns carry only
// days, expanded to midnight timestamps.
func parseRecord(record []string, cols map[string]int, ownerID int64) (models.Client, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	createdAt, err := time.Parse(dateLayout, field("Criado em"))
	if err != nil {
		return models.Client{}, fmt.Errorf("%w: bad date %q", ErrBadFile, field("Criado em"))
	}

	updatedAt, err := time.Parse(dateLayout, field("Atualizado em"))
	if err != nil {
		return models.Client{}, fmt.Errorf("%w: bad date %q", ErrBadFile, field("Atualizado em"))
	}

	return models.Client{
		Name:      field("Nome"),
		Email:     strings.ToLower(field("Email")),
		Phone:     field("Telefone"),
		OwnerID:   ownerID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
