package server

import (
	"fmt"
	"net/http"

	"github.com/sefs-io/sefs/internal/store"
)

// graphNode is one node of the visualization graph. File and cluster-center
// nodes share one shape, distinguished by Type.
type graphNode struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	ClusterID   int64   `json:"cluster_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	FileID      int64   `json:"file_id,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	FileType    string  `json:"file_type,omitempty"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
	WordCount   int     `json:"word_count,omitempty"`
	PageCount   int     `json:"page_count,omitempty"`
	Summary     string  `json:"summary,omitempty"`
	CurrentPath string  `json:"current_path,omitempty"`
	FileCount   int     `json:"file_count,omitempty"`
	Description string  `json:"description,omitempty"`
}

type graphLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

type graphResponse struct {
	Nodes    []graphNode           `json:"nodes"`
	Links    []graphLink           `json:"links"`
	Clusters []store.ClusterRecord `json:"clusters"`
}

// handleGraph returns the full node/link set for the cluster map: file nodes
// at their 2D coordinates, cluster-center nodes at the member mean, links
// from files to their center, and a few intra-cluster similarity edges.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Stores.Current()

	files, err := st.ListFiles(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	clusters, err := st.ListClusters(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if clusters == nil {
		clusters = []store.ClusterRecord{}
	}

	nodes := make([]graphNode, 0, len(files)+len(clusters))
	byCluster := make(map[int64][]graphNode)
	for _, f := range files {
		n := graphNode{
			ID:          fmt.Sprintf("file-%d", f.ID),
			Type:        "file",
			Label:       f.Filename,
			ClusterID:   f.ClusterID,
			X:           f.MapX,
			Y:           f.MapY,
			FileID:      f.ID,
			Filename:    f.Filename,
			FileType:    f.FileType,
			SizeBytes:   f.SizeBytes,
			WordCount:   f.WordCount,
			PageCount:   f.PageCount,
			Summary:     f.Summary,
			CurrentPath: f.CurrentPath,
		}
		nodes = append(nodes, n)
		byCluster[f.ClusterID] = append(byCluster[f.ClusterID], n)
	}

	var links []graphLink
	known := make(map[int64]bool, len(clusters))
	for _, c := range clusters {
		known[c.ID] = true

		center := graphNode{
			ID:          fmt.Sprintf("cluster-%d", c.ID),
			Type:        "cluster",
			Label:       c.Name,
			ClusterID:   c.ID,
			FileCount:   c.FileCount,
			Description: c.Description,
		}
		if members := byCluster[c.ID]; len(members) > 0 {
			var sx, sy float64
			for _, m := range members {
				sx += m.X
				sy += m.Y
			}
			center.X = sx / float64(len(members))
			center.Y = sy / float64(len(members))
		}
		nodes = append(nodes, center)
	}

	for _, n := range nodes {
		if n.Type == "file" && known[n.ClusterID] {
			links = append(links, graphLink{
				Source: n.ID,
				Target: fmt.Sprintf("cluster-%d", n.ClusterID),
				Value:  1,
			})
		}
	}

	// A few neighbor edges within each cluster keep the layout cohesive
	// without producing a quadratic edge count.
	for _, members := range byCluster {
		for i := range members {
			for j := i + 1; j < len(members) && j < i+4; j++ {
				links = append(links, graphLink{
					Source: members[i].ID,
					Target: members[j].ID,
					Value:  0.5,
				})
			}
		}
	}

	if links == nil {
		links = []graphLink{}
	}
	writeJSON(w, http.StatusOK, graphResponse{Nodes: nodes, Links: links, Clusters: clusters})
}
