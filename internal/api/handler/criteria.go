package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/syllabus-search/offline-index/internal/query"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

// ParseCriteria reads filter parameters from a query string.
//
//	category, department, campus, grade, day, term  plain strings
//	delivery     online | in_person
//	periods      comma separated, e.g. 1,2
//	slots        day:period pairs, e.g. 月:1,火:2
//	unscheduled  true | false
func ParseCriteria(q url.Values) (query.Criteria, error) {
	c := query.Criteria{
		Category:   first(q, "category"),
		Department: first(q, "department"),
		Campus:     first(q, "campus"),
		Grade:      first(q, "grade"),
		Day:        first(q, "day"),
		Term:       first(q, "term"),
	}

	switch d := query.Delivery(first(q, "delivery")); d {
	case query.DeliveryAny, query.DeliveryOnline, query.DeliveryInPerson:
		c.Delivery = d
	default:
		return c, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"delivery must be %q or %q", query.DeliveryOnline, query.DeliveryInPerson)
	}

	if s := first(q, "periods"); s != "" {
		for _, part := range strings.Split(s, ",") {
			p, err := parsePeriod(part)
			if err != nil {
				return c, err
			}
			c.Periods = append(c.Periods, p)
		}
	}

	if s := first(q, "slots"); s != "" {
		for _, part := range strings.Split(s, ",") {
			day, period, ok := strings.Cut(strings.TrimSpace(part), ":")
			if !ok || day == "" {
				return c, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
					"slot %q must look like day:period", part)
			}
			p, err := parsePeriod(period)
			if err != nil {
				return c, err
			}
			c.Slots = append(c.Slots, query.Slot{Day: day, Period: p})
		}
	}

	if s := first(q, "unscheduled"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return c, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "unscheduled must be a boolean")
		}
		c.Unscheduled = b
	}
	return c, nil
}

func parsePeriod(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"period %q must be a positive integer", s)
	}
	return p, nil
}
