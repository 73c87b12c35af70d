package export

import (
	"context"
	"io"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/policy"
)

const (
	SheetName   = "Ratings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var header = []interface{}{"Login", "Full name", "Class", "Rating", "Last login"}

// AccountLister lists the accounts a principal may see. account.Service satisfies it.
type AccountLister interface {
	Query(ctx context.Context, p policy.Principal, filter account.QueryFilter, ordering ...core.DBOrdering) ([]account.Account, error)
}

type Service struct {
	accounts AccountLister
	logger   core.Logger
}

func NewService(accounts AccountLister, logger core.Logger) (*Service, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(accounts, "accounts"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "export.NewService")
	}
	return &Service{accounts: accounts, logger: logger}, nil
}

// Filename names the sheet exported at t.
func Filename(t time.Time) string {
	return "ratings-" + t.UTC().Format("20060102-150405") + ".xlsx"
}

// RatingSheet writes the users visible to p, best rated first, as an XLSX workbook to w.
// Only principals allowed to rate may export; class narrows the sheet to one class.
func (svc *Service) RatingSheet(ctx context.Context, p policy.Principal, class string, w io.Writer) error {
	if !policy.Allows(p.Role, policy.SetRating) {
		return core.ErrForbidden
	}

	users, err := svc.accounts.Query(
		ctx, p,
		account.QueryFilter{Roles: []string{string(account.RoleUser)}, ClassGroup: class},
		core.DBOrdering{Field: "rating"},
		core.DBOrdering{Field: "full_name", Ascending: true},
	)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			svc.logger.Warn("export: closing workbook", err)
		}
	}()

	if err = f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	if err = f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	if err = f.SetCellStyle(SheetName, "A1", "E1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}
	if err = f.SetColWidth(SheetName, "A", "E", 20); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	for i, usr := range users {
		lastLogin := ""
		if !usr.LastLogin.IsZero() {
			lastLogin = usr.LastLogin.UTC().Format(time.RFC3339)
		}
		row := []interface{}{usr.Login, usr.FullName, usr.Class(), usr.RatingValue(), lastLogin}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "locating row")
		}
		if err = f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
