// Package feed carries estimator inputs into the process: JSON messages
// shaped like the ROS topics the estimator consumes (map, scan, tf,
// tf_static, amcl_pose) arriving over UDP, a serial line or a pcap capture,
// and the Node that dispatches them to the transform buffer and the
// consistency aggregator.
package feed
