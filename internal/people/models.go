package people

import (
	"encoding/json"
	"time"
)

// Record is an enriched profile. (SearchBatchID, LinkedInURL) is unique; the
// same profile may be enriched again under another batch.
type Record struct {
	ID             uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SearchBatchID  uint64  `gorm:"column:search_id;not null;uniqueIndex:uniq_people_search_link,priority:1" json:"search_batch_id"`
	SourceResultID *uint64 `gorm:"column:google_result_id;index" json:"source_result_id,omitempty"`
	LinkedInURL    string  `gorm:"column:linkedin_url;type:varchar(512);not null;uniqueIndex:uniq_people_search_link,priority:2" json:"linkedin_url"`

	PersonUUID        *string `gorm:"type:varchar(64)" json:"person_uuid"`
	FullName          *string `gorm:"type:varchar(255)" json:"full_name"`
	FirstName         *string `gorm:"type:varchar(128)" json:"first_name"`
	LastName          *string `gorm:"type:varchar(128)" json:"last_name"`
	Title             *string `gorm:"type:varchar(512)" json:"title"`
	Headline          *string `gorm:"type:text" json:"headline"`
	PersonIndustry    *string `gorm:"type:varchar(255)" json:"person_industry"`
	ImageURL          *string `gorm:"type:varchar(1024)" json:"image_url"`
	PersonCity        *string `gorm:"type:varchar(128)" json:"person_city"`
	PersonState       *string `gorm:"type:varchar(128)" json:"person_state"`
	PersonCountryCode *string `gorm:"type:varchar(8)" json:"person_country_code"`
	PersonCountry     *string `gorm:"type:varchar(128)" json:"person_country"`
	PersonRegion      *string `gorm:"type:varchar(128)" json:"person_region"`

	OrgUUID        *string `gorm:"type:varchar(64)" json:"org_uuid"`
	OrgName        *string `gorm:"type:varchar(255)" json:"org_name"`
	OrgWebsite     *string `gorm:"type:varchar(512)" json:"org_website"`
	OrgDomain      *string `gorm:"type:varchar(255)" json:"org_domain"`
	OrgLinkedInURL *string `gorm:"column:org_linkedin_url;type:varchar(512)" json:"org_linkedin_url"`
	OrgEmployees   *int64  `json:"org_employees"`
	OrgIndustry    *string `gorm:"type:varchar(255)" json:"org_industry"`
	OrgCity        *string `gorm:"type:varchar(128)" json:"org_city"`
	OrgState       *string `gorm:"type:varchar(128)" json:"org_state"`
	OrgCountryCode *string `gorm:"type:varchar(8)" json:"org_country_code"`
	OrgCountry     *string `gorm:"type:varchar(128)" json:"org_country"`
	OrgRegion      *string `gorm:"type:varchar(128)" json:"org_region"`

	Emails json.RawMessage `gorm:"column:emails_json;serializer:json;type:text" json:"emails"`
	Phones json.RawMessage `gorm:"column:phones_json;serializer:json;type:text" json:"phones"`
	Raw    json.RawMessage `gorm:"column:raw_json;serializer:json;type:text" json:"raw"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Record) TableName() string { return "salesql_enriched_people" }

type Sort string

const (
	SortRecent Sort = "recent"
	SortName   Sort = "name"
)

// Filter selects people for listing. Zero values mean "no filter".
type Filter struct {
	SearchBatchID *uint64
	Q             string
	Location      string
	Sort          Sort
	Limit         int
	Offset        int
}
