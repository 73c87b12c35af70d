package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-other`; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	LoginRequest struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	RatingRequest struct {
		Delta *int `json:"delta"`
	}

	RoleRequest struct {
		Role account.Role `json:"role"`
	}

	RatingResponse struct {
		User   account.Account      `json:"user"`
		Change account.RatingChange `json:"change"`
	}
)
