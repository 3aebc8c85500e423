// Package chart собирает почасовые снимки чарта Spotify за период.
package chart

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidMoment возвращается для нераспознанной даты
	ErrInvalidMoment = errors.New("invalid date")
	// ErrEndBeforeStart возвращается, если конец периода раньше начала
	ErrEndBeforeStart = errors.New("end date must not be before start date")
)

// Period задает интервал сбора, обе границы включительно
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod создает период и проверяет порядок границ
func NewPeriod(start, end time.Time) (Period, error) {
	if end.Before(start) {
		return Period{}, ErrEndBeforeStart
	}
	return Period{Start: start, End: end}, nil
}

// Hours возвращает количество часовых слотов в периоде
func (p Period) Hours() int {
	return int(p.End.Sub(p.Start)/time.Hour) + 1
}

// Slots возвращает слоты Start, Start+1h, ... не позже End
func (p Period) Slots() []time.Time {
	slots := make([]time.Time, 0, p.Hours())
	for t := p.Start; !t.After(p.End); t = t.Add(time.Hour) {
		slots = append(slots, t)
	}
	return slots
}

// ParseMoment разбирает дату вида "2024 1 1 0": год, месяц, день и
// необязательные час, минута, секунда через пробел.
func ParseMoment(input string, loc *time.Location) (time.Time, error) {
	fields := strings.Fields(input)
	if len(fields) < 3 || len(fields) > 6 {
		return time.Time{}, fmt.Errorf("%w: expected 3 to 6 numbers, got %d", ErrInvalidMoment, len(fields))
	}

	// year, month, day, hour, minute, second
	parts := make([]int, 6)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not a number", ErrInvalidMoment, f)
		}
		parts[i] = n
	}

	year, month, day, hour, minute, second := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]

	switch {
	case year < 1 || year > 9999:
		return time.Time{}, fmt.Errorf("%w: year %d out of range", ErrInvalidMoment, year)
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: month %d out of range", ErrInvalidMoment, month)
	case hour < 0 || hour > 23:
		return time.Time{}, fmt.Errorf("%w: hour %d out of range", ErrInvalidMoment, hour)
	case minute < 0 || minute > 59:
		return time.Time{}, fmt.Errorf("%w: minute %d out of range", ErrInvalidMoment, minute)
	case second < 0 || second > 59:
		return time.Time{}, fmt.Errorf("%w: second %d out of range", ErrInvalidMoment, second)
	}

	if loc == nil {
		loc = time.Local
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	// time.Date нормализует 31 февраля в март, такие даты отклоняем
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: day %d out of range", ErrInvalidMoment, day)
	}

	return t, nil
}

// ParsePeriod разбирает обе границы и проверяет их порядок
func ParsePeriod(start, end string, loc *time.Location) (Period, error) {
	startTime, err := ParseMoment(start, loc)
	if err != nil {
		return Period{}, fmt.Errorf("start: %w", err)
	}
	endTime, err := ParseMoment(end, loc)
	if err != nil {
		return Period{}, fmt.Errorf("end: %w", err)
	}
	return NewPeriod(startTime, endTime)
}
