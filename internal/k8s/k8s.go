package k8s

import (
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/pepsico-ecommerce/dawdle/configs"
)

// Clientset is the global Kubernetes clientset instance.
var Clientset *kubernetes.Clientset

// Setup initializes the in-cluster clientset. Only needed when leader
// election is enabled.
func Setup() (err error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return
	}

	Clientset, err = kubernetes.NewForConfig(config)
	return
}

// GetLeaseLock returns the LeaseLock used for poller leader election.
func GetLeaseLock(id string) *resourcelock.LeaseLock {
	return &resourcelock.LeaseLock{
		LeaseMeta: metaV1.ObjectMeta{
			Namespace: configs.Env.PodNamespace,
			Name:      configs.Env.LeaderElectionLockName,
		},
		Client: Clientset.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: id,
		},
	}
}
