package provider

import (
	"github.com/rendis/venuegrid/internal/model"
)

// Wire types for the Places JSON responses. All fields are optional on the
// wire; absent values stay zero and are omitted downstream, never fabricated.

type searchResponse struct {
	Results       []placeResult `json:"results"`
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type placeResult struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity,omitempty"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	Types            []string `json:"types,omitempty"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos,omitempty"`
}

func (r placeResult) candidate() model.Candidate {
	c := model.Candidate{
		ExternalID:  r.PlaceID,
		Name:        r.Name,
		Lat:         r.Geometry.Location.Lat,
		Lng:         r.Geometry.Location.Lng,
		Address:     r.Vicinity,
		Rating:      r.Rating,
		RatingCount: r.UserRatingsTotal,
		Categories:  r.Types,
	}
	for _, p := range r.Photos {
		if p.PhotoReference != "" {
			c.PhotoRefs = append(c.PhotoRefs, p.PhotoReference)
		}
	}
	return c
}

type detailsResponse struct {
	Result detailsResult `json:"result"`
	Status string        `json:"status"`
}

type detailsResult struct {
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components,omitempty"`
	FormattedPhoneNumber string `json:"formatted_phone_number,omitempty"`
	Website              string `json:"website,omitempty"`
	OpeningHours         struct {
		Periods []struct {
			Open struct {
				Day  int    `json:"day"`
				Time string `json:"time"`
			} `json:"open"`
			Close struct {
				Day  int    `json:"day"`
				Time string `json:"time"`
			} `json:"close"`
		} `json:"periods,omitempty"`
	} `json:"opening_hours,omitempty"`
}

func (r detailsResult) details() *model.Details {
	d := &model.Details{
		Phone:   r.FormattedPhoneNumber,
		Website: r.Website,
	}

	for _, ac := range r.AddressComponents {
		for _, t := range ac.Types {
			switch t {
			case "street_number", "route":
				if d.Address == "" {
					d.Address = ac.LongName
				} else {
					d.Address = d.Address + " " + ac.LongName
				}
			case "postal_town", "locality":
				if d.City == "" {
					d.City = ac.LongName
				}
			case "administrative_area_level_2":
				d.County = ac.LongName
			case "postal_code":
				d.Postcode = ac.LongName
			}
		}
	}

	for _, p := range r.OpeningHours.Periods {
		// An always-open venue has a single open period with no close.
		h := model.OpeningHours{Day: p.Open.Day, Opens: p.Open.Time, Closes: p.Close.Time}
		d.Hours = append(d.Hours, h)
	}

	return d
}
