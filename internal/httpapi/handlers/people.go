package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/talent-pipeline/internal/common"
	"github.com/suPer8Hu/talent-pipeline/internal/people"
)

func (h *Handler) ListPeople(c *gin.Context) {
	f := people.Filter{
		Q:        c.Query("q"),
		Location: c.Query("location"),
		Sort:     people.SortRecent,
	}
	if v := c.Query("search_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10005, "invalid search_id")
			return
		}
		f.SearchBatchID = &id
	}
	switch s := people.Sort(c.DefaultQuery("sort", string(people.SortRecent))); s {
	case people.SortRecent, people.SortName:
		f.Sort = s
	default:
		common.Fail(c, http.StatusBadRequest, 10005, "sort must be recent or name")
		return
	}

	var ok bool
	if f.Limit, ok = queryInt(c, "limit", 50); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		return
	}
	if f.Limit < 1 || f.Limit > 200 {
		common.Fail(c, http.StatusBadRequest, 10005, "limit must be in 1..200")
		return
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	recs, total, err := h.People.List(c.Request.Context(), f)
	if err != nil {
		h.internalError(c, 20001, "db error", err)
		return
	}
	common.OK(c, gin.H{
		"items":  recs,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}
