package staging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

type fakeBatches struct {
	created []*models.ImportBatch
	err     error
}

func (f *fakeBatches) Create(_ context.Context, batch *models.ImportBatch) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, batch)
	return nil
}

func newTestLoader(batches BatchCreator) *Loader {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewLoader(logger, batches, nil)
}

func TestLoader_Load(t *testing.T) {
	t.Run("stages organizations and strips the email column", func(t *testing.T) {
		batches := &fakeBatches{}
		loader := newTestLoader(batches)

		csv := "Name,Email,company_email_domain,Type,Notes\n" +
			"Dallas Cowboys,info@dallascowboys.com,dallascowboys.com,team,call 214-555-1234\n" +
			",,,,\n" +
			"dallas cowboys,,dallascowboys.com,Team,\n"

		res, err := loader.Load(context.Background(), LoadRequest{
			SourceName: "nfl-teams",
			FileName:   "teams.csv",
			EntityType: models.EntityTypeOrganization,
			Body:       strings.NewReader(csv),
		})
		require.NoError(t, err)
		require.Len(t, batches.created, 1)

		batch := res.Batch
		assert.Equal(t, models.BatchStatusProcessing, batch.Status)
		assert.Equal(t, 2, batch.TotalRecords)
		assert.Equal(t, "csv", batch.SourceType)
		assert.Equal(t, "nfl-teams", batch.SourceName)
		assert.Equal(t, []string{"Email"}, res.Report.RemovedColumns)
		assert.Equal(t, []string{"Notes"}, res.Report.IgnoredColumns)
		assert.Equal(t, []string{"Notes"}, res.Report.SanitizedColumns)
		assert.Equal(t, []string{"Email"}, batch.Metadata.Data.RemovedColumns)

		require.Len(t, res.Records, 2)
		first := res.Records[0]
		assert.Equal(t, 1, first.RowNumber)
		assert.Equal(t, batch.ID, first.BatchID)
		require.NotNil(t, first.Organization)
		assert.Equal(t, "Dallas Cowboys", *first.Organization.Name)
		assert.Equal(t, "dallascowboys.com", *first.Organization.CompanyEmailDomain)
		assert.Equal(t, "Team", *first.Organization.OrgType)

		// blank row 2 is skipped but keeps its place in the numbering
		assert.Equal(t, 3, res.Records[1].RowNumber)
	})

	t.Run("uses the column mapping override", func(t *testing.T) {
		loader := newTestLoader(&fakeBatches{})
		csv := "Who,Org,Position,Began\nJane Doe,Dallas Cowboys,VP Sales,2024-01-01\n"

		res, err := loader.Load(context.Background(), LoadRequest{
			FileName:   "roles.csv",
			EntityType: models.EntityTypeRole,
			Body:       strings.NewReader(csv),
			Mapping:    map[string]string{"Who": "person_full_name", "Began": "start_date"},
		})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)

		role := res.Records[0].Role
		require.NotNil(t, role)
		assert.Equal(t, "Jane Doe", *role.PersonFullName)
		assert.Equal(t, "Dallas Cowboys", *role.OrganizationName)
		assert.Equal(t, "VP Sales", *role.JobTitle)
		require.NotNil(t, role.StartDate)
		assert.Equal(t, "2024-01-01", role.StartDate.Format("2006-01-02"))
		assert.Equal(t, "roles", res.Batch.SourceName)
	})

	t.Run("reads semicolon separated files with a BOM", func(t *testing.T) {
		loader := newTestLoader(&fakeBatches{})
		csv := "\ufefffirst_name;last_name;linkedin\nJon;Smith;linkedin.com/in/JonSmith/\n"

		res, err := loader.Load(context.Background(), LoadRequest{
			FileName:   "people.csv",
			EntityType: models.EntityTypePerson,
			Body:       strings.NewReader(csv),
		})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)

		person := res.Records[0].Person
		assert.Equal(t, "Jon Smith", *person.FullName)
		assert.Equal(t, "https://www.linkedin.com/in/jonsmith", *person.LinkedInURL)
	})

	t.Run("reads xlsx uploads", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetCellValue("Sheet1", "A1", "Headline"))
		require.NoError(t, f.SetCellValue("Sheet1", "B1", "Link"))
		require.NoError(t, f.SetCellValue("Sheet1", "A2", "Cowboys hire new CMO"))
		require.NoError(t, f.SetCellValue("Sheet1", "B2", "https://news.example.com/cmo"))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		res, err := newTestLoader(&fakeBatches{}).Load(context.Background(), LoadRequest{
			FileName:   "news.xlsx",
			EntityType: models.EntityTypeNews,
			Body:       &buf,
		})
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, "xlsx", res.Batch.SourceType)
		assert.Equal(t, "Cowboys hire new CMO", *res.Records[0].News.Title)
		assert.Equal(t, "https://news.example.com/cmo", *res.Records[0].News.URL)
	})

	t.Run("persistence failure is returned", func(t *testing.T) {
		boom := &importerror.ConnectionError{Op: "create import batch", Err: errors.New("connection refused")}
		_, err := newTestLoader(&fakeBatches{err: boom}).Load(context.Background(), LoadRequest{
			FileName:   "people.csv",
			EntityType: models.EntityTypePerson,
			Body:       strings.NewReader("name\nJane Doe\n"),
		})
		assert.Equal(t, importerror.KindConnection, importerror.KindOf(err))
	})
}

func TestLoader_LoadMalformed(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		entityType models.EntityType
		body       string
	}{
		{"empty file", "a.csv", models.EntityTypePerson, ""},
		{"whitespace only", "a.csv", models.EntityTypePerson, "  \n \n"},
		{"not utf-8", "a.csv", models.EntityTypePerson, "name\n\xff\xfe\n"},
		{"blank header column", "a.csv", models.EntityTypePerson, "name,,title\nJane,x,CEO\n"},
		{"duplicate header", "a.csv", models.EntityTypePerson, "Name,name\nJane,Jane\n"},
		{"not a spreadsheet", "a.xlsx", models.EntityTypePerson, "name\nJane\n"},
		{"unknown entity type", "a.csv", models.EntityType("widget"), "name\nJane\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := &fakeBatches{}
			_, err := newTestLoader(batches).Load(context.Background(), LoadRequest{
				FileName:   tt.fileName,
				EntityType: tt.entityType,
				Body:       strings.NewReader(tt.body),
			})

			var malformed *importerror.MalformedInputError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Empty(t, batches.created, "nothing may be persisted")
		})
	}
}

func TestLoader_Preview(t *testing.T) {
	loader := newTestLoader(&fakeBatches{})
	csv := "Full Name,Title,Company,Phone Number,Favourite Colour\n" +
		"Jane Doe,CEO,Dallas Cowboys,214-555-1234,blue\n" +
		"John Smith,CFO,Dallas Cowboys,214-555-9999,red\n"

	res, err := loader.Preview(context.Background(), models.EntityTypeRole, "roles.csv", strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalRows)
	assert.Equal(t, []string{"Phone Number"}, res.RemovedColumns)
	assert.Equal(t, []string{"Favourite Colour"}, res.IgnoredColumns)
	assert.Equal(t, map[string]string{
		"Full Name": "person_full_name",
		"Title":     "job_title",
		"Company":   "organization_name",
	}, res.SuggestedMapping)
	require.Len(t, res.SampleRows, 2)
	_, hasPhone := res.SampleRows[0]["Phone Number"]
	assert.False(t, hasPhone)
}

func TestLoader_SensitiveColumnVariants(t *testing.T) {
	headers := "Full Name,Annual Salary,Salary (USD),Email (Work),Mobile Number,Home Address Street,Notes (Personal),Private Contact Information\n"
	row := "Jane Doe,250000,250000,jane@example.com,214-555-1234,12 Elm St,likes golf,see file\n"
	sensitive := []string{
		"Annual Salary", "Email (Work)", "Home Address Street", "Mobile Number",
		"Notes (Personal)", "Private Contact Information", "Salary (USD)",
	}

	t.Run("preview never shows them", func(t *testing.T) {
		loader := newTestLoader(&fakeBatches{})
		res, err := loader.Preview(context.Background(), models.EntityTypePerson, "people.csv", strings.NewReader(headers+row))
		require.NoError(t, err)

		assert.ElementsMatch(t, sensitive, res.RemovedColumns)
		require.Len(t, res.SampleRows, 1)
		assert.Equal(t, map[string]string{"Full Name": "Jane Doe"}, res.SampleRows[0])
	})

	t.Run("a mapping cannot stage them", func(t *testing.T) {
		loader := newTestLoader(&fakeBatches{})
		res, err := loader.Load(context.Background(), LoadRequest{
			SourceName: "crm",
			FileName:   "people.csv",
			EntityType: models.EntityTypePerson,
			Body:       strings.NewReader(headers + row),
			Mapping:    map[string]string{"Annual Salary": "tags", "Home Address Street": "tags"},
		})
		require.NoError(t, err)

		require.Len(t, res.Records, 1)
		assert.Empty(t, res.Records[0].Person.Tags)
		assert.NotContains(t, res.Report.Mapping, "Annual Salary")
		assert.ElementsMatch(t, sensitive, res.Report.RemovedColumns)
	})
}
