package portal

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Portal endpoint names, also used as metric labels.
const (
	endpointPeriods       = "getDot"
	endpointSubjects      = "getHocPhanHocMoi"
	endpointClasses       = "getLopHocPhanChoDangKy"
	endpointClassDetail   = "getLopHocPhanDetail"
	endpointRegistrations = "getLHPDaDangKy"
	endpointRegister      = "dangKyLopHocPhan"
	endpointCancel        = "huyDangKy"
)

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := c.config.BaseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// fetchList performs a GET and decodes a successful envelope body into out.
// success=false is returned as an ErrorClassRejected error carrying the upstream message.
func (c *Client) fetchList(ctx context.Context, endpoint string, query url.Values, token string, out any, failMsg string) error {
	env, err := c.request(ctx, endpoint, c.endpointURL(endpoint, query), token, http.MethodGet, nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return newRejectedError(env.Message, failMsg)
	}
	if err := env.decodeBody(out); err != nil {
		return newMalformedError(err)
	}
	return nil
}

// Periods lists the registration periods.
func (c *Client) Periods(ctx context.Context, token string) ([]Period, error) {
	periods := []Period{}
	if err := c.fetchList(ctx, endpointPeriods, nil, token, &periods, "Failed to fetch registration periods"); err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []Period{}
	}
	return periods, nil
}

// Subjects lists the subjects open for registration in a period.
func (c *Client) Subjects(ctx context.Context, token string, periodID int64) ([]Subject, error) {
	query := url.Values{"idDot": {strconv.FormatInt(periodID, 10)}}
	subjects := []Subject{}
	if err := c.fetchList(ctx, endpointSubjects, query, token, &subjects, "Failed to fetch subjects"); err != nil {
		return nil, err
	}
	if subjects == nil {
		subjects = []Subject{}
	}
	return subjects, nil
}

// Classes lists the classes of a subject that are open for registration in a period.
func (c *Client) Classes(ctx context.Context, token string, periodID int64, subjectCode string) ([]Class, error) {
	query := url.Values{
		"idDot":                      {strconv.FormatInt(periodID, 10)},
		"maHocPhan":                  {subjectCode},
		"isLocTrung":                 {"False"},
		"isLocTrungWithoutElearning": {"false"},
	}
	classes := []Class{}
	if err := c.fetchList(ctx, endpointClasses, query, token, &classes, "Failed to fetch classes"); err != nil {
		return nil, err
	}
	if classes == nil {
		classes = []Class{}
	}
	return classes, nil
}

// ClassSchedules lists the meeting times of a class.
func (c *Client) ClassSchedules(ctx context.Context, token string, classID int64) ([]Schedule, error) {
	query := url.Values{"idLopHocPhan": {strconv.FormatInt(classID, 10)}}
	schedules := []Schedule{}
	if err := c.fetchList(ctx, endpointClassDetail, query, token, &schedules, "Failed to fetch class details"); err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	return schedules, nil
}

// Registrations lists the learner's registrations in a period.
func (c *Client) Registrations(ctx context.Context, token string, periodID int64) ([]Registration, error) {
	query := url.Values{"idDot": {strconv.FormatInt(periodID, 10)}}
	registrations := []Registration{}
	if err := c.fetchList(ctx, endpointRegistrations, query, token, &registrations, "Failed to fetch registered courses"); err != nil {
		return nil, err
	}
	if registrations == nil {
		registrations = []Registration{}
	}
	return registrations, nil
}

// Register enrolls the learner in a class. The envelope is returned as-is:
// success=false is a normal outcome the caller reports per class, not an error.
func (c *Client) Register(ctx context.Context, token string, classID int64) (*Envelope, error) {
	query := url.Values{"idLopHocPhan": {strconv.FormatInt(classID, 10)}}
	return c.request(ctx, endpointRegister, c.endpointURL(endpointRegister, query), token, http.MethodPost, nil)
}

// CancelRegistration removes a registration.
func (c *Client) CancelRegistration(ctx context.Context, token, registrationID string) error {
	query := url.Values{"idDangKy": {registrationID}}
	env, err := c.request(ctx, endpointCancel, c.endpointURL(endpointCancel, query), token, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return newRejectedError(env.Message, "Failed to cancel registration")
	}
	return nil
}
